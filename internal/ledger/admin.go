package ledger

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/ndnrevoke/internal/auth"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/observability"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/danmuck/ndnrevoke/internal/storage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type AdminConfig struct {
	Addr string
	// Tokens guard /states when non-empty.
	Tokens      []string
	CorsOrigins []string
}

// StateView is the JSON form of a CertificateState.
type StateView struct {
	Certificate         string `json:"certificate"`
	Ledger              string `json:"ledger"`
	Status              string `json:"status"`
	Reason              string `json:"reason,omitempty"`
	Publisher           string `json:"publisher,omitempty"`
	PublicKeyHash       string `json:"public_key_hash,omitempty"`
	RevocationTimestamp uint64 `json:"revocation_timestamp,omitempty"`
	Record              string `json:"record,omitempty"`
	RecordBase64        string `json:"record_base64,omitempty"`
}

func viewOf(st storage.CertificateState) StateView {
	v := StateView{
		Certificate:   st.CertName.String(),
		Ledger:        st.LedgerPrefix.String(),
		Status:        st.Status.String(),
		PublicKeyHash: hex.EncodeToString(st.PublicKeyHash),
	}
	if len(st.PublisherID.Value) > 0 {
		v.Publisher = st.PublisherID.String()
	}
	if st.Status == storage.StatusRevoked {
		v.Reason = st.Reason.String()
		v.RevocationTimestamp = st.RevocationTimestamp
	}
	if st.Record != nil {
		v.Record = st.Record.Name.String()
		v.RecordBase64 = security.EncodeData(st.Record)
	}
	return v
}

// Admin is the ledger's read-only HTTP API.
type Admin struct {
	ledger   string
	store    storage.Store
	router   *gin.Engine
	appeared time.Time
}

func NewAdmin(ledgerPrefix ndn.Name, store storage.Store, cfg AdminConfig) *Admin {
	observability.RegisterMetrics()
	node := ledgerPrefix.String()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(node))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{ledger: node, store: store, router: r, appeared: time.Now()}
	a.registerRoutes(cfg.Tokens)
	return a
}

func (a *Admin) Handler() http.Handler { return a.router }

func (a *Admin) registerRoutes(tokens []string) {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(a.appeared).String(),
			"ledger": a.ledger,
		})
	})
	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	states := a.router.Group("/states")
	if len(tokens) > 0 {
		states.Use(requireToken(auth.TokenSet(tokens)))
	}
	// "/states/" lists, "/states/<uri>" looks one certificate up.
	states.GET("/*name", a.getState)
}

func (a *Admin) listStates(c *gin.Context) {
	var prefix ndn.Name
	if raw := c.Query("prefix"); raw != "" {
		p, err := ndn.ParseName(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		prefix = p
	}
	list, err := a.store.List(prefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]StateView, 0, len(list))
	for _, st := range list {
		views = append(views, viewOf(st))
	}
	c.JSON(http.StatusOK, gin.H{"states": views})
}

func (a *Admin) getState(c *gin.Context) {
	// Certificate names carry percent-escaped components; parse the escaped
	// path rather than the decoded parameter.
	raw := strings.TrimPrefix(c.Request.URL.EscapedPath(), "/states")
	if raw == "" || raw == "/" {
		a.listStates(c)
		return
	}
	name, err := ndn.ParseName(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := a.store.Get(name)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, viewOf(st))
}

// Serve blocks serving the admin API on addr.
func (a *Admin) Serve(addr string) error {
	log.Info().Str("addr", addr).Str("ledger", a.ledger).Msg("ledger admin listening")
	return a.router.Run(addr)
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			err = v.Validate(token)
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
