package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// HeaderCode 是 REST 接口携带共享口令的请求头。
const HeaderCode = "X-Chat-Code"

// Passphrase 校验全局共享口令。配置了 bcrypt 哈希时优先使用哈希比较。
type Passphrase struct {
	plain []byte
	hash  []byte
}

func NewPassphrase(plain, hash string) *Passphrase {
	p := &Passphrase{}
	if hash != "" {
		p.hash = []byte(hash)
	} else {
		p.plain = []byte(plain)
	}
	return p
}

// Check 判断 code 是否与共享口令一致；空口令永远不通过。
func (p *Passphrase) Check(code string) bool {
	if code == "" {
		return false
	}
	if p.hash != nil {
		return bcrypt.CompareHashAndPassword(p.hash, []byte(code)) == nil
	}
	return subtle.ConstantTimeCompare(p.plain, []byte(code)) == 1
}

// HashCode 生成共享口令的 bcrypt 哈希，用于填写 SECRET_CODE_HASH。server -hash-code 调用它。
func HashCode(code string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	return string(b), err
}

// Middleware 要求请求头携带正确的共享口令。
func Middleware(p *Passphrase) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !p.Check(c.GetHeader(HeaderCode)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
			return
		}
		c.Next()
	}
}
