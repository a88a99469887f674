// Package transport 把掉落服务接入 NATS：死亡事件订阅与玩家会话推送。
package transport

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"tsu-loot/internal/modules/loot/service"
	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/metrics"
	"tsu-loot/internal/protocol/lootpb"
)

// HeaderMessageName 推送消息的类型头，网关据此选择解码器
const HeaderMessageName = "Loot-Msg"

// Publisher 消息发布（*nats.Conn 实现）
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Sessions 按实体 ID 构造远程玩家
type Sessions struct {
	publisher     Publisher
	subjectFormat string
	logger        log.Logger
	metrics       *metrics.ResourceMetrics
}

// NewSessions subjectFormat 形如 "session.%d.push"
func NewSessions(publisher Publisher, subjectFormat string, logger log.Logger, m *metrics.ResourceMetrics) *Sessions {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Sessions{
		publisher:     publisher,
		subjectFormat: subjectFormat,
		logger:        logger,
		metrics:       m,
	}
}

// Player 返回某个实体的远程玩家句柄
func (s *Sessions) Player(id service.EntityID, pos lootpb.Vector3) *RemotePlayer {
	return &RemotePlayer{id: id, pos: pos, sessions: s}
}

// RemotePlayer 通过 NATS 会话主题推送消息的玩家
//
// 位置是事件发生时的快照，附近查询总是使用请求中携带的位置。
type RemotePlayer struct {
	id       service.EntityID
	pos      lootpb.Vector3
	sessions *Sessions
}

func (p *RemotePlayer) ID() service.EntityID { return p.id }

func (p *RemotePlayer) Position() lootpb.Vector3 { return p.pos }

// Send 编码后发布到玩家会话主题，失败只记录日志
func (p *RemotePlayer) Send(msg lootpb.Message) {
	s := p.sessions
	data, err := msg.Marshal()
	if err != nil {
		s.logger.Error("编码推送消息失败", err, log.String("message", msg.MessageName()))
		return
	}

	out := nats.NewMsg(fmt.Sprintf(s.subjectFormat, int64(p.id)))
	out.Header.Set(HeaderMessageName, msg.MessageName())
	out.Data = data

	err = s.publisher.PublishMsg(out)
	if s.metrics != nil {
		s.metrics.RecordNatsPublish("session_push", err, "")
	}
	if err != nil {
		s.logger.Warn("推送消息失败",
			log.Int64("entity_id", int64(p.id)),
			log.String("message", msg.MessageName()),
			log.Any("error", err),
		)
	}
}
