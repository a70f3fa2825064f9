package service

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/models"
	"storefront/internal/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginResponse(token, role string) *remote.LoginResponse {
	resp := &remote.LoginResponse{Token: token}
	resp.User.Role = role
	return resp
}

func TestLoginCreatesSessionAndAdoptsMirror(t *testing.T) {
	f := newFixture(t)
	f.remote.loginResp = loginResponse("jwt", "user")
	f.remote.cart = []byte(`[{"id":"1","name":"Milk","price":80,"quantity":2}]`)
	ctx := context.Background()

	sess, err := f.auth.Login(ctx, &LoginRequest{Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)
	assert.True(t, sess.LoggedIn)
	assert.Equal(t, models.RoleUser, sess.Role)
	assert.Equal(t, "jwt", sess.APIToken)

	resolved, err := f.auth.Resolve(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, resolved.ID)

	view, err := f.cart.GetCart(ctx, resolved)
	require.NoError(t, err)
	assert.Equal(t, 2, view.ItemCount)
}

func TestLoginAdminSkipsMirror(t *testing.T) {
	f := newFixture(t)
	f.remote.loginResp = loginResponse("jwt", "admin")
	f.remote.cartErr = errors.New("should not be called")

	sess, err := f.auth.Login(context.Background(), &LoginRequest{Email: "a@b.c", Password: "pw", IsAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, sess.Role)
	assert.False(t, sess.CanUseCart())
}

func TestLoginMirrorFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.remote.loginResp = loginResponse("jwt", "user")
	f.remote.cartErr = errors.New("mirror down")

	sess, err := f.auth.Login(context.Background(), &LoginRequest{Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)
	assert.True(t, sess.CanUseCart())
}

func TestLoginFailure(t *testing.T) {
	f := newFixture(t)
	f.remote.loginErr = &remote.StatusError{Method: "POST", Path: "/auth/login", StatusCode: 401, Message: "Invalid credentials"}

	_, err := f.auth.Login(context.Background(), &LoginRequest{Email: "a@b.c", Password: "bad"})
	assert.ErrorIs(t, err, remote.ErrRemote)
}

func TestLogoutDiscardsSessionAndCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cart.AddItem(ctx, f.customer, "1", 1)
	require.NoError(t, err)
	published := len(f.publisher.cart)

	require.NoError(t, f.auth.Logout(ctx, f.customer))

	resolved, err := f.auth.Resolve(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.False(t, resolved.LoggedIn)
	assert.Equal(t, models.RoleGuest, resolved.Role)

	l, err := f.carts.Load(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
	assert.Len(t, f.publisher.cart, published)
}

func TestResolveUnknownTokenIsGuest(t *testing.T) {
	f := newFixture(t)

	sess, err := f.auth.Resolve(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, models.RoleGuest, sess.Role)

	sess, err = f.auth.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, sess.LoggedIn)
}

func TestSignup(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.auth.Signup(context.Background(), &SignupRequest{Name: "A", Email: "a@b.c", Password: "pw"}))

	f.remote.signupErr = errors.New("email taken")
	assert.Error(t, f.auth.Signup(context.Background(), &SignupRequest{Name: "A", Email: "a@b.c", Password: "pw"}))
}
