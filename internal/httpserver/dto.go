package httpserver

import (
	"github.com/Skotchmaster/workhub/internal/models"
	"github.com/Skotchmaster/workhub/internal/service"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type updateProfileRequest struct {
	Name string `json:"name"`
}

type signupResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

type sessionResponse struct {
	ID          string `json:"_id"`
	Email       string `json:"email"`
	IsVerified  bool   `json:"isVerified"`
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

type userSummary struct {
	ID         string `json:"_id"`
	Email      string `json:"email"`
	IsVerified bool   `json:"isVerified"`
}

type refreshResponse struct {
	AccessToken string      `json:"accessToken"`
	ExpiresAt   int64       `json:"expiresAt"`
	User        userSummary `json:"user"`
}

func summary(u *models.User) userSummary {
	return userSummary{ID: u.ID, Email: u.Email, IsVerified: u.IsVerified}
}

func newSessionResponse(res *service.SessionResult) sessionResponse {
	return sessionResponse{
		ID:          res.User.ID,
		Email:       res.User.Email,
		IsVerified:  res.User.IsVerified,
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
	}
}
