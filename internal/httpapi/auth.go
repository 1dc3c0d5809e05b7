package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// StaffClaims is the token shape issued by the external auth service. An
// empty PlaceIDs list means access to every place.
type StaffClaims struct {
	Role     string   `json:"role"`
	PlaceIDs []string `json:"placeIds,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks staff bearer tokens. Credential issuance and rotation live
// in the auth service; this side only validates the HMAC signature.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return nil
	}
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Parse(tokenString string) (*StaffClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StaffClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*StaffClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// requireStaff gates an endpoint on a valid staff credential. placeID may be
// empty for entry-id addressed actions, where place scoping cannot be known
// before the store lookup.
func (h *Handler) requireStaff(w http.ResponseWriter, r *http.Request, placeID string) bool {
	if h.verifier == nil {
		writeError(w, http.StatusUnauthorized, "staff authentication is not configured")
		return false
	}
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing staff credential")
		return false
	}
	claims, err := h.verifier.Parse(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid staff credential")
		return false
	}
	if claims.Role != "staff" && claims.Role != "admin" {
		writeError(w, http.StatusForbidden, "staff role required")
		return false
	}
	if placeID != "" && len(claims.PlaceIDs) > 0 && !contains(claims.PlaceIDs, placeID) {
		writeError(w, http.StatusForbidden, "place access denied")
		return false
	}
	return true
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
