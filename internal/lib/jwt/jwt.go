package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"authgate/internal/domain/models"
)

// GenerateToken creates an access JWT token for the user.
func GenerateToken(
	user *models.User,
	secret string,
	duration time.Duration,
) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(
		jwt.SigningMethodHS256,
		jwt.MapClaims{
			"uid":        user.ID,
			"username":   user.Username,
			"token_type": "access",
			"iat":        now.Unix(),
			"exp":        now.Add(duration).Unix(),
		})
	return token.SignedString([]byte(secret))
}

// ParseToken parses and validates a JWT token, returning the claims.
func ParseToken(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims["token_type"] != "access" {
		return nil, fmt.Errorf("unexpected token type: %v", claims["token_type"])
	}

	return claims, nil
}

// UserID extracts the uid claim.
func UserID(claims jwt.MapClaims) (int64, error) {
	uid, ok := claims["uid"].(float64)
	if !ok {
		return 0, fmt.Errorf("uid claim missing")
	}
	return int64(uid), nil
}
