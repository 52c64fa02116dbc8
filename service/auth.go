package service

import (
	"net/http"
	"strings"

	"stageflow/dao/model"
	"stageflow/dao/query"
	"stageflow/response"
	"stageflow/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// Capability names one permitted action. Handlers check capabilities,
// never role string literals, so the role table is the single place
// that defines what each role may do.
type Capability string

const (
	CapAreaWrite       Capability = "area:write"
	CapFlowWrite       Capability = "flow:write"
	CapMappingWrite    Capability = "mapping:write"
	CapImportRun       Capability = "import:run"
	CapStagingWrite    Capability = "staging:write"
	CapTransferExec    Capability = "transfer:execute"
	CapTransferApprove Capability = "transfer:approve"
	CapTransferForce   Capability = "transfer:force"
)

var roleCapabilities = map[model.Role]map[Capability]bool{
	model.RoleViewer: {},
	model.RoleOperator: {
		CapImportRun:    true,
		CapStagingWrite: true,
		CapTransferExec: true,
	},
	model.RoleAdmin: {
		CapAreaWrite:       true,
		CapFlowWrite:       true,
		CapMappingWrite:    true,
		CapImportRun:       true,
		CapStagingWrite:    true,
		CapTransferExec:    true,
		CapTransferApprove: true,
		CapTransferForce:   true,
	},
}

// HasCapability reports whether the role grants the capability.
func HasCapability(role model.Role, cap Capability) bool {
	return roleCapabilities[role][cap]
}

const sessionKey = "stageflow-session"

// AuthMiddleware verifies the bearer token and stores the decoded
// session in the gin context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			response.HTTPError(c, http.StatusUnauthorized, "missing bearer token", response.InvalidToken)
			c.Abort()
			return
		}
		session, err := util.GetTokenMgr().CheckToken(token)
		if err != nil {
			response.HTTPError(c, http.StatusUnauthorized, err.Error(), response.TokenExpired)
			c.Abort()
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

// CurrentSession returns the session stored by AuthMiddleware.
func CurrentSession(c *gin.Context) util.JWTMessage {
	if v, ok := c.Get(sessionKey); ok {
		if session, ok := v.(util.JWTMessage); ok {
			return session
		}
	}
	return util.JWTMessage{}
}

// requireCapability fetches the session and rejects the request when
// the role does not grant cap. Returns ok=false after writing the
// error response.
func requireCapability(c *gin.Context, cap Capability) (util.JWTMessage, bool) {
	session := CurrentSession(c)
	if !HasCapability(session.Role, cap) {
		response.HTTPError(c, http.StatusForbidden, "role does not grant "+string(cap), response.InvalidRole)
		return session, false
	}
	return session, true
}

type LoginReq struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResp struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       uint   `json:"userID"`
	Username     string `json:"username"`
	Role         uint8  `json:"role"`
}

func Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	var user model.User
	err := query.DB.Where("name = ?", req.Name).First(&user).Error
	if err != nil || user.Password == nil {
		response.HTTPError(c, http.StatusUnauthorized, "invalid credentials", response.UserNotFound)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(req.Password)) != nil {
		response.HTTPError(c, http.StatusUnauthorized, "invalid credentials", response.UserNotFound)
		return
	}

	msg := &util.JWTMessage{
		UserID:   user.ID,
		Username: user.Name,
		Role:     user.Role,
	}
	if user.AreaID != nil {
		msg.AreaID = *user.AreaID
	}
	access, refresh, err := util.GetTokenMgr().CreateTokens(msg)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, TokenResp{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Name,
		Role:         uint8(user.Role),
	})
}

type RefreshReq struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func Refresh(c *gin.Context) {
	var req RefreshReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	session, err := util.GetTokenMgr().CheckToken(req.RefreshToken)
	if err != nil {
		response.HTTPError(c, http.StatusUnauthorized, err.Error(), response.TokenExpired)
		return
	}
	access, refresh, err := util.GetTokenMgr().CreateTokens(&session)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, TokenResp{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       session.UserID,
		Username:     session.Username,
		Role:         uint8(session.Role),
	})
}

func Me(c *gin.Context) {
	session := CurrentSession(c)
	if session.UserID == model.InvalidUserID {
		response.HTTPError(c, http.StatusUnauthorized, "no session", response.InvalidToken)
		return
	}
	caps := make([]Capability, 0, len(roleCapabilities[session.Role]))
	for cap := range roleCapabilities[session.Role] {
		caps = append(caps, cap)
	}
	response.Success(c, gin.H{
		"userID":       session.UserID,
		"username":     session.Username,
		"role":         session.Role,
		"areaID":       session.AreaID,
		"capabilities": caps,
	})
}

func RegisterAuth(g *gin.RouterGroup) {
	g.POST("/auth/login", Login)
	g.POST("/auth/refresh", Refresh)
}

func RegisterSession(g *gin.RouterGroup) {
	g.GET("/auth/me", Me)
}
