package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dnldd/smc/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// maxBodySize is the maximum accepted alert payload size.
	maxBodySize = 1 << 16
	// shutdownTimeout is the maximum time allowed for the alert server to shut down.
	shutdownTimeout = time.Second * 5
)

// ParseAlertKind parses the provided alert type.
func ParseAlertKind(kind string) (shared.AlertKind, error) {
	switch strings.ToUpper(strings.TrimSpace(kind)) {
	case "BUY":
		return shared.Buy, nil
	case "SELL":
		return shared.Sell, nil
	default:
		return shared.Buy, fmt.Errorf("unknown alert type: %q", kind)
	}
}

// ParseAlert parses an alert from the provided json payload of the form
// {"type": "BUY", "symbol": "BTCUSDT", "price": 1}. The price is optional.
func ParseAlert(data []byte, received time.Time) (*shared.Alert, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid alert json")
	}

	payload := gjson.ParseBytes(data)

	kind, err := ParseAlertKind(payload.Get("type").String())
	if err != nil {
		return nil, err
	}

	market := strings.ToUpper(strings.TrimSpace(payload.Get("symbol").String()))
	if market == "" {
		return nil, errors.New("no alert symbol provided")
	}

	var price float64
	if p := payload.Get("price"); p.Exists() {
		price = p.Float()
		if price < 0 {
			return nil, fmt.Errorf("alert price cannot be negative, got %f", price)
		}
	}

	return &shared.Alert{
		Kind:       kind,
		Market:     market,
		Price:      price,
		ReceivedOn: received,
	}, nil
}

// HandlerConfig represents the alert webhook handler configuration.
type HandlerConfig struct {
	// Relay relays parsed alerts for processing.
	Relay func(alert shared.Alert)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *HandlerConfig) Validate() error {
	var errs error
	if cfg.Relay == nil {
		errs = errors.Join(errs, errors.New("relay function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, errors.New("logger cannot be nil"))
	}

	return errs
}

// Handler receives third-party trade alerts over http.
type Handler struct {
	cfg *HandlerConfig
	now func() time.Time
}

// Ensure the Handler implements the http.Handler interface.
var _ http.Handler = (*Handler)(nil)

// NewHandler initializes a new alert handler.
func NewHandler(cfg *HandlerConfig) (*Handler, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating alert handler config: %w", err)
	}

	return &Handler{cfg: cfg, now: time.Now}, nil
}

// ServeHTTP parses posted alerts and relays them.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.cfg.Logger.Error().Msgf("reading alert body: %v", err)
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	alert, err := ParseAlert(body, h.now())
	if err != nil {
		h.cfg.Logger.Warn().Msgf("parsing alert: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.cfg.Logger.Info().Msgf("received %s alert for %s at %.8f", alert.Kind, alert.Market, alert.Price)
	h.cfg.Relay(*alert)

	w.WriteHeader(http.StatusAccepted)
}

// Serve serves the provided handler on the provided address until the context is
// cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second * 5,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("serving alerts on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving alerts: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutting down alert server: %w", err)
	}

	return nil
}
