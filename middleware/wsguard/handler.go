package wsguard

import (
	"context"
	"net/http"
	"time"

	"ws-gateway/middleware/wsguard/application"
	"ws-gateway/middleware/wsguard/domain"
	"ws-gateway/middleware/wsguard/infra"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// AppFunc é o handler da aplicação. Recebe a conexão já admitida e instrumentada;
// quando retorna, a conexão é fechada e a vaga liberada.
type AppFunc func(ctx context.Context, c *Conn)

type Options struct {
	// Store guarda os contadores de admissão e telemetria. Se nil, tudo é admitido
	// e nada é contado.
	Store         domain.CounterStore
	Limits        domain.Limits
	FailurePolicy domain.FailurePolicy

	Stats   domain.StatsStore
	Metrics *infra.Metrics
	// Messages limita mensagens recebidas por cliente. Se nil, usa um
	// infra.Store com Limits.MaxMessagesPerMinute e janitor ligado a Context.
	// Um store fornecido aqui precisa da própria limpeza (StartJanitor).
	Messages domain.LimiterStore
	// Context encerra as goroutines de fundo criadas pelo Handler (nil = vivem
	// até o fim do processo).
	Context context.Context

	// MaxConnections limita conexões abertas nesta instância (0 = sem limite).
	MaxConnections int

	KeyFn              KeyFunc
	KeyHeader          string
	IgnoreProxyHeaders bool

	AddRateLimitHeaders bool

	Upgrader *websocket.Upgrader
	Logger   *zap.Logger
	// TelemetryTimeout limita cada ida ao store de telemetria.
	TelemetryTimeout time.Duration

	Now   func() time.Time
	NewID func() string
}

// Handler monta o pipeline: chave do cliente -> limite global -> admissão ->
// upgrade -> collector -> app. Rejeições completam o upgrade e fecham na hora
// com 1008 (1013 para limite global), sem chamar a app.
func Handler(opts Options, app AppFunc) http.Handler {
	opts.Limits = opts.Limits.WithDefaults()
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, !opts.IgnoreProxyHeaders)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Upgrader == nil {
		opts.Upgrader = &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Messages == nil {
		messages := infra.NewMessageStore(opts.Limits.MaxMessagesPerMinute)
		messages.StartJanitor(opts.Context)
		opts.Messages = messages
	}
	if opts.TelemetryTimeout <= 0 {
		opts.TelemetryTimeout = 500 * time.Millisecond
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	g := &guard{
		opts: opts,
		pool: infra.NewChanPool(opts.MaxConnections),
		admission: application.AdmissionService{
			Store:  opts.Store,
			Limits: opts.Limits,
			Policy: opts.FailurePolicy,
		},
		collector: application.Collector{Store: opts.Store, Now: opts.Now},
		gate:      application.MessageGate{Store: opts.Messages},
		reporter: application.Reporter{
			Logger:  opts.Logger,
			OnError: opts.Metrics.TelemetryError,
		},
		app: app,
	}
	return g
}

type guard struct {
	opts      Options
	pool      domain.SlotPool
	admission application.AdmissionService
	collector application.Collector
	gate      application.MessageGate
	reporter  application.Reporter
	app       AppFunc
}

func (g *guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := domain.Key(g.opts.KeyFn(r))
	log := g.opts.Logger.With(zap.String("client", string(key)), zap.String("path", r.URL.Path))
	lc := &lifecycle{state: domain.StateOpening, log: log}

	if g.pool != nil {
		release, ok := g.pool.TryAcquire()
		if !ok {
			g.record(r, key, domain.Decision{Allowed: false, Reason: domain.ReasonServerFull})
			lc.to(domain.StateRejected)
			g.reject(w, r, log, domain.ReasonServerFull)
			return
		}
		defer release()
	}

	adm, err := g.admission.Admit(r.Context(), key)
	if err != nil {
		log.Warn("admission store unavailable",
			zap.Stringer("policy", g.opts.FailurePolicy),
			zap.Bool("allowed", adm.Decision.Allowed),
			zap.Error(err))
		g.opts.Metrics.TelemetryError("admission")
	}
	g.record(r, key, adm.Decision)
	if !adm.Decision.Allowed {
		lc.to(domain.StateRejected)
		g.reject(w, r, log, adm.Decision.Reason)
		return
	}
	defer func() {
		g.reporter.Report("release", adm.Release(), zap.String("client", string(key)))
	}()
	lc.to(domain.StateAdmitted)

	var hdr http.Header
	if g.opts.AddRateLimitHeaders {
		hdr = rateLimitHeaders(key, g.opts.Limits)
	}
	ws, err := g.opts.Upgrader.Upgrade(w, r, hdr)
	if err != nil {
		// o upgrader já respondeu com o erro HTTP
		log.Debug("upgrade failed", zap.Error(err))
		lc.to(domain.StateClosed)
		return
	}
	defer ws.Close()

	id := g.opts.NewID()
	sess := g.open(id)
	lc.to(domain.StateOpen)
	log.Debug("connection open", zap.String("conn_id", id))
	defer func() {
		g.close(sess)
		lc.to(domain.StateClosed)
	}()

	conn := &Conn{
		ws:        ws,
		key:       key,
		id:        id,
		collector: g.collector,
		gate:      g.gate,
		reporter:  g.reporter,
		metrics:   g.opts.Metrics,
		timeout:   g.opts.TelemetryTimeout,
	}
	g.app(r.Context(), conn)
}

func (g *guard) open(id string) application.Session {
	ctx, cancel := context.WithTimeout(context.Background(), g.opts.TelemetryTimeout)
	defer cancel()

	sess, err := g.collector.Open(ctx, id)
	g.reporter.Report("open", err, zap.String("conn_id", id))
	g.opts.Metrics.Opened()
	return sess
}

// close roda em defer: executa em todo caminho de saída da app, inclusive panic
// e cancelamento, então o gauge não fica inflado.
func (g *guard) close(sess application.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), g.opts.TelemetryTimeout)
	defer cancel()

	d, err := g.collector.Close(ctx, sess)
	g.reporter.Report("close", err, zap.String("conn_id", sess.ID))
	g.opts.Metrics.Closed(d)
}

func (g *guard) record(r *http.Request, key domain.Key, dec domain.Decision) {
	if g.opts.Stats == nil {
		return
	}
	at := time.Now()
	if g.opts.Now != nil {
		at = g.opts.Now()
	}
	err := g.opts.Stats.Record(r.Context(), domain.StatsEvent{
		Key:     key,
		Allowed: dec.Allowed,
		Reason:  dec.Reason,
		Path:    r.URL.Path,
		At:      at,
	})
	g.reporter.Report("stats", err)
}

// reject completa o handshake só para entregar o close code; nenhum dado é trocado.
func (g *guard) reject(w http.ResponseWriter, r *http.Request, log *zap.Logger, reason domain.Reason) {
	log.Info("connection rejected", zap.String("reason", string(reason)))

	ws, err := g.opts.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	writeClose(ws, closeCode(reason))
	_ = ws.Close()
}

func closeCode(reason domain.Reason) int {
	if reason == domain.ReasonServerFull {
		return websocket.CloseTryAgainLater
	}
	return websocket.ClosePolicyViolation
}

type lifecycle struct {
	state domain.ConnState
	log   *zap.Logger
}

func (l *lifecycle) to(s domain.ConnState) {
	if l.state.Terminal() {
		l.log.Error("connection lifecycle", zap.Stringer("state", l.state), zap.Stringer("to", s))
		return
	}
	next, err := l.state.Next(s)
	if err != nil {
		l.log.Error("connection lifecycle", zap.Error(err))
		return
	}
	l.state = next
}
