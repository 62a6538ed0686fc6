package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/angelmondragon/orderportal/pkg/types"
)

// AccessTokenPayload is what the caller supplies when issuing a token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims carry the user id in the standard sub claim and the
// portal role in a private claim.
type AccessTokenClaims struct {
	Role enums.UserRole `json:"role"`
	jwt.RegisteredClaims

	UserID uuid.UUID `json:"-"`
}

func (c AccessTokenClaims) IsAdmin() bool {
	return c.Role == enums.UserRoleAdmin
}

// Actor converts verified claims into the value services authorize against.
func (c AccessTokenClaims) Actor() types.Actor {
	return types.Actor{UserID: c.UserID, IsAdmin: c.IsAdmin()}
}
