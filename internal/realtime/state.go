package realtime

// Phase 通道认证阶段
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "UNAUTHENTICATED"
	case PhaseAuthenticating:
		return "AUTHENTICATING"
	case PhaseAuthenticated:
		return "AUTHENTICATED"
	case PhaseClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// 拒绝原因，原样写入 ERROR 帧的 message 头和关闭帧
const (
	ReasonMissingCredential   = "missing credential"
	ReasonInvalidToken        = "invalid token"
	ReasonTokenExpired        = "token expired"
	ReasonDuplicateConnection = "duplicate connection"
	ReasonAuthError           = "authentication error"
)

// Principal 认证通过的身份
type Principal struct {
	UserID      int64
	Key         string
	Authorities []string
}

// State 单个通道的认证状态
// Counted 表示该通道已计入在线人数，断开时据此决定是否减一
type State struct {
	Phase     Phase
	Principal *Principal
	Counted   bool
}

// Event 驱动状态机的事件
type Event interface{ event() }

type (
	// ConnectRequested 收到 CONNECT/STOMP 帧
	ConnectRequested struct{}
	// AuthSucceeded 凭证校验且会话占用成功
	AuthSucceeded struct{ Principal Principal }
	// AuthFailed 认证失败
	AuthFailed struct{ Reason string }
	// DisconnectRequested DISCONNECT 帧或底层连接断开
	DisconnectRequested struct{}
)

func (ConnectRequested) event()    {}
func (AuthSucceeded) event()       {}
func (AuthFailed) event()          {}
func (DisconnectRequested) event() {}

// Effect 状态转换产生的副作用，由 Authenticator 按顺序执行
type Effect interface{ effect() }

type (
	Authenticate       struct{}
	BindPrincipal      struct{ Principal Principal }
	IncrementPresence  struct{}
	AcknowledgeConnect struct{}
	RejectConnection   struct{ Reason string }
	DecrementPresence  struct{}
	ReleaseSession     struct{ UserID int64 }
)

func (Authenticate) effect()       {}
func (BindPrincipal) effect()      {}
func (IncrementPresence) effect()  {}
func (AcknowledgeConnect) effect() {}
func (RejectConnection) effect()   {}
func (DecrementPresence) effect()  {}
func (ReleaseSession) effect()     {}

// Handle 纯状态转换函数，不做任何 I/O
func Handle(ev Event, st State) (State, []Effect) {
	switch e := ev.(type) {
	case ConnectRequested:
		switch st.Phase {
		case PhaseUnauthenticated:
			st.Phase = PhaseAuthenticating
			return st, []Effect{Authenticate{}}
		case PhaseAuthenticated:
			// 重复 CONNECT 只重新确认，不重复计数
			return st, []Effect{AcknowledgeConnect{}}
		}
		return st, nil

	case AuthSucceeded:
		if st.Phase != PhaseAuthenticating {
			return st, nil
		}
		p := e.Principal
		st.Phase = PhaseAuthenticated
		st.Principal = &p
		effects := []Effect{BindPrincipal{Principal: p}}
		if !st.Counted {
			st.Counted = true
			effects = append(effects, IncrementPresence{})
		}
		return st, append(effects, AcknowledgeConnect{})

	case AuthFailed:
		if st.Phase != PhaseAuthenticating {
			return st, nil
		}
		st.Phase = PhaseClosed
		return st, []Effect{RejectConnection{Reason: e.Reason}}

	case DisconnectRequested:
		if st.Phase == PhaseClosed {
			return st, nil
		}
		var effects []Effect
		if st.Counted {
			effects = append(effects, DecrementPresence{})
		}
		if st.Principal != nil {
			effects = append(effects, ReleaseSession{UserID: st.Principal.UserID})
		}
		st.Phase = PhaseClosed
		st.Counted = false
		return st, effects
	}
	return st, nil
}
