package handler

import (
	"context"
	"errors"
	"math/big"
	"net/http"

	"github.com/blues/fundchain/internal/chain"
	"github.com/gin-gonic/gin"
)

// SessionManager 钱包会话, *chain.Manager 满足
type SessionManager interface {
	Session() (*chain.Session, error)
	Connect(ctx context.Context) (*chain.Session, error)
	Disconnect()
	Balance(ctx context.Context) (*big.Int, error)
}

// SessionHandler 会话处理器
type SessionHandler struct {
	sessions SessionManager
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) describe(ctx context.Context, s *chain.Session) (SessionResponse, error) {
	resp := SessionResponse{
		Connected:   true,
		Account:     s.Account().Hex(),
		ChainID:     s.ChainID().String(),
		ReadOnly:    !s.CanSign(),
		ConnectedAt: unixOrZero(s.ConnectedAt()),
	}
	if cf := s.Contract(); cf != nil {
		resp.Contract = cf.GetAddress().Hex()
	}
	balance, err := h.sessions.Balance(ctx)
	if err != nil {
		return resp, err
	}
	resp.Balance = toAmount(balance)
	return resp, nil
}

// GetSession 当前账户, 链ID与余额
func (h *SessionHandler) GetSession(c *gin.Context) {
	s, err := h.sessions.Session()
	if errors.Is(err, chain.ErrNotConnected) {
		SuccessResponse(c, http.StatusOK, "未连接", SessionResponse{Balance: toAmount(nil)})
		return
	}
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	resp, err := h.describe(c.Request.Context(), s)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取会话成功", resp)
}

// Connect 建立会话, 已连接时返回现有会话
func (h *SessionHandler) Connect(c *gin.Context) {
	s, err := h.sessions.Connect(c.Request.Context())
	if err != nil {
		AppErrorResponse(c, err)
		return
	}

	resp, err := h.describe(c.Request.Context(), s)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "连接成功", resp)
}

// Disconnect 断开会话
func (h *SessionHandler) Disconnect(c *gin.Context) {
	h.sessions.Disconnect()
	SuccessResponse(c, http.StatusOK, "已断开连接", SessionResponse{Balance: toAmount(nil)})
}
