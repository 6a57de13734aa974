// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"monet-probing/internal/model"
	"monet-probing/internal/service"
	"monet-probing/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// writeWait 是单个事件写入客户端的超时时间。
const writeWait = 10 * time.Second

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ProbeHandler 负责处理探询 WebSocket 连接。
type ProbeHandler struct {
	probeService service.ProbeService
}

// NewProbeHandler 创建一个新的 ProbeHandler。
func NewProbeHandler(probeService service.ProbeService) *ProbeHandler {
	return &ProbeHandler{probeService: probeService}
}

// Handle 处理一个传入的 WebSocket 连接。同一连接上的回合按顺序逐个处理。
func (h *ProbeHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立: %s", conn.RemoteAddr())

	emit := service.EmitterFunc(func(ev model.ProbeEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(ev)
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		var req model.SurveyResponse
		if err := json.Unmarshal(message, &req); err != nil {
			log.Warnw("无法解析探询回合", "error", err, "payload", string(message))
			if err := emit(model.ErrorEvent(http.StatusBadRequest, "invalid JSON payload: "+err.Error())); err != nil {
				break
			}
			continue
		}

		err = h.probeService.HandleTurn(c.Request.Context(), req, emit)
		if errors.Is(err, service.ErrEmitFailed) {
			log.Warnw("客户端连接已失效，关闭 WebSocket", "key", req.Key(), "error", err)
			break
		}
	}

	log.Infof("WebSocket 连接已关闭: %s", conn.RemoteAddr())
}
