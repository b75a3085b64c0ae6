package service

import (
	"context"

	v1 "github.com/888wing/sixarms-landing/api/landing/v1"
	"github.com/888wing/sixarms-landing/api/landing/v1/landingv1connect"
	"github.com/888wing/sixarms-landing/internal/biz/model"

	"connectrpc.com/connect"
)

// AuthService 注册、登录与会话管理
type AuthService struct {
	userUseCase model.UserUseCase
}

var _ landingv1connect.AuthServiceHandler = (*AuthService)(nil)

func NewAuthService(userUseCase model.UserUseCase) landingv1connect.AuthServiceHandler {
	return &AuthService{
		userUseCase: userUseCase,
	}
}

func (s *AuthService) SignUp(ctx context.Context, req *connect.Request[v1.SignUpRequest]) (*connect.Response[v1.SessionResponse], error) {
	session, err := s.userUseCase.SignUp(ctx, req.Msg.Email, req.Msg.Password)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(toSessionResponse(session)), nil
}

func (s *AuthService) SignIn(ctx context.Context, req *connect.Request[v1.SignInRequest]) (*connect.Response[v1.SessionResponse], error) {
	session, err := s.userUseCase.SignIn(ctx, req.Msg.Email, req.Msg.Password)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(toSessionResponse(session)), nil
}

func (s *AuthService) GetSession(ctx context.Context, req *connect.Request[v1.GetSessionRequest]) (*connect.Response[v1.SessionResponse], error) {
	session, err := s.userUseCase.GetSession(ctx, model.TokenFromHeader(req.Header()))
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(toSessionResponse(session)), nil
}

func (s *AuthService) RefreshSession(ctx context.Context, req *connect.Request[v1.RefreshSessionRequest]) (*connect.Response[v1.SessionResponse], error) {
	session, err := s.userUseCase.RefreshSession(ctx, model.TokenFromHeader(req.Header()))
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(toSessionResponse(session)), nil
}

func (s *AuthService) SignOut(ctx context.Context, req *connect.Request[v1.SignOutRequest]) (*connect.Response[v1.SignOutResponse], error) {
	if err := s.userUseCase.SignOut(ctx, model.TokenFromHeader(req.Header())); err != nil {
		return nil, err
	}
	return connect.NewResponse(&v1.SignOutResponse{}), nil
}

func toSessionResponse(s *model.Session) *v1.SessionResponse {
	return &v1.SessionResponse{
		User: &v1.User{
			Id:    s.User.ID,
			Email: s.User.Email,
		},
		AccessToken: s.Token,
		ExpiresAt:   s.ExpiresAt.Unix(),
	}
}
