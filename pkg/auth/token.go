package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"
	"github.com/pkg/errors"
)

// TokenTTL is how long locally issued session tokens stay valid
const TokenTTL = 24 * time.Hour

// IssueToken creates a signed session token carrying the user ID as subject
func IssueToken(userID uuid.UUID, jwtSecret []byte) (string, error) {
	if len(jwtSecret) == 0 {
		return "", ErrInvalidJWTKey
	}

	token := jwt.New()
	now := time.Now()
	if err := token.Set(jwt.SubjectKey, userID.String()); err != nil {
		return "", errors.Wrap(err, "failed to set subject claim")
	}
	if err := token.Set(jwt.IssuedAtKey, now); err != nil {
		return "", errors.Wrap(err, "failed to set issued-at claim")
	}
	if err := token.Set(jwt.ExpirationKey, now.Add(TokenTTL)); err != nil {
		return "", errors.Wrap(err, "failed to set expiration claim")
	}

	signed, err := jwt.Sign(token, jwa.HS256, jwtSecret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return string(signed), nil
}

// SubjectUserID extracts the user ID from a validated token. Non-UUID
// subjects from external identity providers are mapped onto a deterministic
// UUID so sessions stay stable.
func SubjectUserID(token jwt.Token) (uuid.UUID, error) {
	var subject string
	if sub := token.Subject(); sub != "" {
		subject = sub
	} else if oid, ok := token.Get("oid"); ok {
		subject, _ = oid.(string)
	}
	if subject == "" {
		return uuid.Nil, errors.New("token missing subject claim")
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		userID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(subject))
	}
	return userID, nil
}
