package binance

// State 会话初始化状态机, 只会向前推进; Reinitialize 不会重新探测合约权限
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateProbingFutures
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateProbingFutures:
		return "PROBING_FUTURES"
	case StateReady:
		return "READY"
	default:
		return "DISCONNECTED"
	}
}

// Session 网关会话状态快照
type Session struct {
	State State
	// TimeOffset 服务器时间 - 本地时间, 毫秒
	TimeOffset int64
	// FuturesAvailable 一旦被清除, 本会话内不会再恢复
	FuturesAvailable  bool
	UsingSpotFallback bool
}

func (g *Gateway) Session() Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.session
}

func (g *Gateway) FuturesAvailable() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.session.FuturesAvailable
}

func (g *Gateway) setState(state State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session.State = state
}

func (g *Gateway) setTimeOffset(offset int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session.TimeOffset = offset
}

// enableSpotFallback 降级为现货, 不可逆
func (g *Gateway) enableSpotFallback(reason string) {
	g.mu.Lock()
	changed := g.session.FuturesAvailable
	g.session.FuturesAvailable = false
	g.session.UsingSpotFallback = true
	g.mu.Unlock()

	if changed {
		g.logger.Warn("futures unavailable, switching to spot fallback", "reason", reason)
	}
}
