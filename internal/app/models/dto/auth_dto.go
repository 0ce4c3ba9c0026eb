package dto

// TokenRequest asks for a development token for a student identifier.
type TokenRequest struct {
	StudentID string `json:"studentId" binding:"required,max=64"`
}

// TokenResponse represents JWT token information
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType" example:"Bearer"`
	ExpiresIn   int64  `json:"expiresIn"`
}
