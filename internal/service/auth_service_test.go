package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"budget-tracker/internal/auth"
	"budget-tracker/internal/events"
	"budget-tracker/internal/models"
	"budget-tracker/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type AuthServiceTestSuite struct {
	suite.Suite
	db        *storage.DB
	ctx       context.Context
	publisher *recordingPublisher
	svc       *AuthService
}

func (suite *AuthServiceTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.ctx = context.Background()
	suite.publisher = &recordingPublisher{}
	suite.svc = NewAuthService(db, db, suite.publisher)
}

func (suite *AuthServiceTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *AuthServiceTestSuite) TestRegisterStoresHashedSecret() {
	for i := 0; i < 3; i++ {
		email := fmt.Sprintf("user%d@x.com", i)
		user, err := suite.svc.Register(suite.ctx, fmt.Sprintf("user%d", i), email, "pw123")
		require.NoError(suite.T(), err)

		stored, err := suite.db.GetUserByEmail(suite.ctx, email)
		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), user.ID, stored.ID)
		assert.NotEqual(suite.T(), "pw123", stored.PasswordHash)
		assert.Equal(suite.T(), models.DefaultPicture, stored.Picture)
	}
	assert.Equal(suite.T(),
		[]string{events.TypeUserRegistered, events.TypeUserRegistered, events.TypeUserRegistered},
		suite.publisher.types())
}

func (suite *AuthServiceTestSuite) TestRegisterDuplicateIdentity() {
	_, err := suite.svc.Register(suite.ctx, "jonas", "a@x.com", "pw123")
	require.NoError(suite.T(), err)

	_, err = suite.svc.Register(suite.ctx, "petras", "A@X.com ", "pw")
	assert.ErrorIs(suite.T(), err, ErrDuplicateIdentity, "same email, different case")

	_, err = suite.svc.Register(suite.ctx, "jonas", "b@x.com", "pw")
	assert.ErrorIs(suite.T(), err, ErrDuplicateIdentity, "same name")
}

func (suite *AuthServiceTestSuite) TestRegisterRejectsOverlongPassword() {
	_, err := suite.svc.Register(suite.ctx, "jonas", "jonas@x.com", strings.Repeat("ž", 37))
	assert.ErrorIs(suite.T(), err, auth.ErrPasswordTooLong, "74 bytes in 37 characters")

	_, err = suite.db.GetUserByEmail(suite.ctx, "jonas@x.com")
	assert.ErrorIs(suite.T(), err, storage.ErrNotFound, "nothing is stored")

	_, err = suite.svc.Register(suite.ctx, "jonas", "jonas@x.com", strings.Repeat("a", 72))
	assert.NoError(suite.T(), err)
}

func (suite *AuthServiceTestSuite) TestLoginMatrix() {
	_, err := suite.svc.Register(suite.ctx, "jonas", "a@x.com", "pw123")
	require.NoError(suite.T(), err)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"correct credentials", "a@x.com", "pw123", nil},
		{"email is case-insensitive", "A@x.com", "pw123", nil},
		{"wrong password", "a@x.com", "pw124", ErrInvalidCredentials},
		{"unknown email", "b@x.com", "pw123", ErrInvalidCredentials},
		{"unknown email and wrong password", "b@x.com", "nope", ErrInvalidCredentials},
		{"empty password", "a@x.com", "", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			session, err := suite.svc.Login(suite.ctx, tt.email, tt.password, false)
			if tt.wantErr != nil {
				assert.ErrorIs(suite.T(), err, tt.wantErr)
				assert.Nil(suite.T(), session)
				return
			}
			require.NoError(suite.T(), err)
			assert.Len(suite.T(), session.Token, 64)
		})
	}
}

func (suite *AuthServiceTestSuite) TestLoginRememberControlsLifetime() {
	_, err := suite.svc.Register(suite.ctx, "jonas", "a@x.com", "pw123")
	require.NoError(suite.T(), err)

	short, err := suite.svc.Login(suite.ctx, "a@x.com", "pw123", false)
	require.NoError(suite.T(), err)
	long, err := suite.svc.Login(suite.ctx, "a@x.com", "pw123", true)
	require.NoError(suite.T(), err)

	assert.False(suite.T(), short.Persistent)
	assert.True(suite.T(), long.Persistent)
	assert.WithinDuration(suite.T(), time.Now().Add(ShortSessionDuration), short.ExpiresAt, time.Minute)
	assert.WithinDuration(suite.T(), time.Now().Add(SessionDuration), long.ExpiresAt, time.Minute)
}

func (suite *AuthServiceTestSuite) TestAuthenticateAndLogout() {
	user, err := suite.svc.Register(suite.ctx, "jonas", "a@x.com", "pw123")
	require.NoError(suite.T(), err)
	session, err := suite.svc.Login(suite.ctx, "a@x.com", "pw123", true)
	require.NoError(suite.T(), err)

	id, err := suite.svc.Authenticate(suite.ctx, session.Token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), user.ID, id.User.ID)
	assert.False(suite.T(), id.Renewed, "fresh sessions are not renewed")

	require.NoError(suite.T(), suite.svc.Logout(suite.ctx, session.Token))
	require.NoError(suite.T(), suite.svc.Logout(suite.ctx, session.Token), "logout is idempotent")
	require.NoError(suite.T(), suite.svc.Logout(suite.ctx, ""))

	_, err = suite.svc.Authenticate(suite.ctx, session.Token)
	assert.ErrorIs(suite.T(), err, ErrUnauthenticated)
}

func (suite *AuthServiceTestSuite) TestAuthenticateUnknownToken() {
	_, err := suite.svc.Authenticate(suite.ctx, "")
	assert.ErrorIs(suite.T(), err, ErrUnauthenticated)

	_, err = suite.svc.Authenticate(suite.ctx, "deadbeef")
	assert.ErrorIs(suite.T(), err, ErrUnauthenticated)
}

func (suite *AuthServiceTestSuite) TestAuthenticateRenewsAgingSession() {
	_, err := suite.svc.Register(suite.ctx, "jonas", "a@x.com", "pw123")
	require.NoError(suite.T(), err)
	session, err := suite.svc.Login(suite.ctx, "a@x.com", "pw123", false)
	require.NoError(suite.T(), err)

	// Pretend most of the session lifetime has passed.
	later := time.Now().Add(ShortSessionDuration - time.Hour)
	suite.svc.now = func() time.Time { return later }

	id, err := suite.svc.Authenticate(suite.ctx, session.Token)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), id.Renewed)
	assert.WithinDuration(suite.T(), later.Add(ShortSessionDuration), id.Session.ExpiresAt, time.Second)

	info, err := suite.db.ValidateSessionWithInfo(suite.ctx, session.Token)
	require.NoError(suite.T(), err)
	assert.WithinDuration(suite.T(), later.Add(ShortSessionDuration), info.Session.ExpiresAt, time.Second)
}

func (suite *AuthServiceTestSuite) TestUpdateProfile() {
	user, err := suite.svc.Register(suite.ctx, "jonas", "a@x.com", "pw123")
	require.NoError(suite.T(), err)
	_, err = suite.svc.Register(suite.ctx, "petras", "p@x.com", "pw123")
	require.NoError(suite.T(), err)

	updated, err := suite.svc.UpdateProfile(suite.ctx, user.ID, "jonas", "a@x.com", "")
	require.NoError(suite.T(), err, "keeping one's own name and email is allowed")
	assert.Equal(suite.T(), models.DefaultPicture, updated.Picture)

	updated, err = suite.svc.UpdateProfile(suite.ctx, user.ID, "jonukas", "j@x.com", "abc.png")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "jonukas", updated.Name)
	assert.Equal(suite.T(), "abc.png", updated.Picture)

	_, err = suite.svc.UpdateProfile(suite.ctx, user.ID, "petras", "j@x.com", "")
	assert.ErrorIs(suite.T(), err, ErrDuplicateIdentity)

	_, err = suite.svc.UpdateProfile(suite.ctx, user.ID, "jonukas", "p@x.com", "")
	assert.ErrorIs(suite.T(), err, ErrDuplicateIdentity)
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
