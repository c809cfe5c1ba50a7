package medai

// Token is the response body of the login and refresh-token endpoints.
type Token struct {
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	TokenType       string `json:"token_type"`
	UserID          string `json:"user_id"`
	IsPremium       bool   `json:"is_premium"`
	RemainingCredit int    `json:"remaining_credit"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// User is the /users/me response.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	Credit        int    `json:"credit"`
	IsPremium     bool   `json:"is_premium"`
	IsVerified    bool   `json:"is_verified"`
	ApplicationID string `json:"application_id"`
}

// CreditResponse is the /credit/add response.
type CreditResponse struct {
	CurrentCredit int `json:"current_credit"`
}
