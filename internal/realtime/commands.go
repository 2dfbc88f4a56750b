package realtime

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/service"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/workerpool"
	apperrors "github.com/Kirya343/WorkSwapCore-sub000/pkg/errors"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// 应用命令目的地
const (
	CommandOpen    = "/app/chat.open"
	CommandSend    = "/app/chat.send"
	CommandRead    = "/app/chat.read"
	CommandHistory = "/app/chat.history"
	CommandList    = "/app/chat.list"
)

// 只回给发起会话的目的地
const (
	DestinationHistory  = "/queue/history"
	DestinationChatList = "/queue/chats.list"
	DestinationRead     = "/queue/chats.read"
)

const defaultCommandTimeout = 10 * time.Second

// ChatAPI 命令调用的聊天服务
type ChatAPI interface {
	OpenChat(ctx context.Context, requesterID, peerID int64, listingID *int64, locale string) (*service.ChatSummary, error)
	SendMessage(ctx context.Context, senderID, chatID int64, text, locale string) (*model.Message, error)
	MarkRead(ctx context.Context, readerID, chatID int64, locale string) (int64, error)
	History(ctx context.Context, userID, chatID int64) ([]*model.Message, error)
	ListChats(ctx context.Context, userID int64, locale string) ([]*service.ChatSummary, error)
}

// ID 命令里的实体 ID，接受 JSON 字符串或整数
type ID int64

// UnmarshalJSON 字符串形式避免前端 Number 精度丢失
func (id *ID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", raw, err)
	}
	*id = ID(v)
	return nil
}

type openCommand struct {
	PeerID    ID  `json:"peerId"`
	ListingID *ID `json:"listingId"`
}

type sendCommand struct {
	ChatID ID     `json:"chatId"`
	Text   string `json:"text"`
}

type chatCommand struct {
	ChatID ID `json:"chatId"`
}

// HistoryReply chat.history 的回复
type HistoryReply struct {
	ChatID   int64            `json:"chatId,string"`
	Messages []*model.Message `json:"messages"`
}

// ReadReply chat.read 的回复
type ReadReply struct {
	ChatID int64 `json:"chatId,string"`
	Marked int64 `json:"marked"`
}

// ErrorPayload /user/queue/errors 的消息体
type ErrorPayload struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Destination string `json:"destination,omitempty"`
}

type commandFunc func(ctx context.Context, s *Session, body []byte) error

type command struct {
	schema *jsonschema.Schema
	run    commandFunc
}

// Commands /app 前缀命令的分发器
// 校验在读循环内同步完成，执行交给 worker pool
type Commands struct {
	chat     ChatAPI
	pool     *workerpool.Pool
	timeout  time.Duration
	handlers map[string]command
	logger   *slog.Logger
}

// NewCommands 编译命令 schema 并注册处理函数
func NewCommands(chat ChatAPI, pool *workerpool.Pool) (*Commands, error) {
	c := &Commands{
		chat:    chat,
		pool:    pool,
		timeout: defaultCommandTimeout,
		logger:  slog.Default(),
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read command schemas: %w", err)
	}
	for _, entry := range entries {
		data, err := schemaFS.ReadFile("schemas/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}
		if err := compiler.AddResource(entry.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", entry.Name(), err)
		}
	}

	runs := map[string]commandFunc{
		CommandOpen:    c.open,
		CommandSend:    c.send,
		CommandRead:    c.read,
		CommandHistory: c.history,
		CommandList:    c.list,
	}
	c.handlers = make(map[string]command, len(runs))
	for dest, run := range runs {
		name := strings.TrimPrefix(dest, PrefixApp+"/") + ".json"
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		c.handlers[dest] = command{schema: schema, run: run}
	}
	return c, nil
}

// Validate 检查目的地和消息体
func (c *Commands) Validate(destination string, body []byte) error {
	cmd, ok := c.handlers[destination]
	if !ok {
		return apperrors.ErrUnknownDestination.Wrap(fmt.Errorf("destination %q", destination))
	}
	return validateBody(cmd.schema, body)
}

func validateBody(schema *jsonschema.Schema, body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return apperrors.ErrInvalidParams.Wrap(fmt.Errorf("body is not valid JSON: %w", err))
	}
	if err := schema.Validate(doc); err != nil {
		return apperrors.ErrInvalidParams.Wrap(err)
	}
	return nil
}

// Dispatch 校验后提交到 worker pool，执行错误推送到会话的错误队列
// 返回值只表示是否成功入队
func (c *Commands) Dispatch(s *Session, destination string, body []byte) error {
	if err := c.Validate(destination, body); err != nil {
		c.replyError(s, destination, err)
		return err
	}
	cmd := c.handlers[destination]

	err := c.pool.TrySubmit(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		if err := cmd.run(ctx, s, body); err != nil {
			c.replyError(s, destination, err)
		}
	})
	if err != nil {
		c.logger.Warn("Command rejected by worker pool",
			"session_id", s.ID(),
			"destination", destination,
			"error", err)
		c.replyError(s, destination, apperrors.ErrTooManyRequest.Wrap(err))
		return err
	}
	return nil
}

func (c *Commands) replyError(s *Session, destination string, err error) {
	code := apperrors.GetCode(err)
	if code == apperrors.CodeServerError {
		c.logger.Error("Command failed",
			"session_id", s.ID(),
			"user_id", s.UserID(),
			"destination", destination,
			"error", err)
	} else {
		c.logger.Debug("Command rejected",
			"session_id", s.ID(),
			"destination", destination,
			"error", err)
	}
	reply(s, service.DestinationErrors, ErrorPayload{
		Code:        code,
		Message:     apperrors.GetMessage(err),
		Destination: destination,
	})
}

// reply 只投递给发起命令的会话
func reply(s *Session, destination string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Marshal reply failed", "destination", destination, "error", err)
		return
	}
	s.deliver(userDestination(destination), body)
}

func decode(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.ErrInvalidParams.Wrap(err)
	}
	return nil
}

func (c *Commands) open(ctx context.Context, s *Session, body []byte) error {
	var cmd openCommand
	if err := decode(body, &cmd); err != nil {
		return err
	}
	var listingID *int64
	if cmd.ListingID != nil {
		v := int64(*cmd.ListingID)
		listingID = &v
	}
	_, err := c.chat.OpenChat(ctx, s.UserID(), int64(cmd.PeerID), listingID, s.Locale())
	return err
}

func (c *Commands) send(ctx context.Context, s *Session, body []byte) error {
	var cmd sendCommand
	if err := decode(body, &cmd); err != nil {
		return err
	}
	_, err := c.chat.SendMessage(ctx, s.UserID(), int64(cmd.ChatID), cmd.Text, s.Locale())
	return err
}

func (c *Commands) read(ctx context.Context, s *Session, body []byte) error {
	var cmd chatCommand
	if err := decode(body, &cmd); err != nil {
		return err
	}
	n, err := c.chat.MarkRead(ctx, s.UserID(), int64(cmd.ChatID), s.Locale())
	if err != nil {
		return err
	}
	reply(s, DestinationRead, ReadReply{ChatID: int64(cmd.ChatID), Marked: n})
	return nil
}

func (c *Commands) history(ctx context.Context, s *Session, body []byte) error {
	var cmd chatCommand
	if err := decode(body, &cmd); err != nil {
		return err
	}
	msgs, err := c.chat.History(ctx, s.UserID(), int64(cmd.ChatID))
	if err != nil {
		return err
	}
	reply(s, DestinationHistory, HistoryReply{ChatID: int64(cmd.ChatID), Messages: msgs})
	return nil
}

func (c *Commands) list(ctx context.Context, s *Session, _ []byte) error {
	chats, err := c.chat.ListChats(ctx, s.UserID(), s.Locale())
	if err != nil {
		return err
	}
	reply(s, DestinationChatList, chats)
	return nil
}
