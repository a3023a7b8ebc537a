package wsocket

import (
	"context"
	"net/http"
	"sync"

	"dessert_generator_go_backend/internal/models"
	"dessert_generator_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type DessertGenerator interface {
	Generate(ctx context.Context, req services.GenerateRequest) services.GenerateResponse
}

// ProgressSource is the subscription side of the progress broker.
type ProgressSource interface {
	Subscribe(topic string) <-chan interface{}
	Unsubscribe(topic string, ch <-chan interface{})
}

type Handler struct {
	generator DessertGenerator
	progress  ProgressSource
	upgrader  websocket.Upgrader
}

// Message is both the client request and the server push envelope.
type Message struct {
	Type        string                     `json:"type"`
	RequestID   string                     `json:"requestId,omitempty"`
	Ingredients string                     `json:"ingredients,omitempty"`
	Theme       string                     `json:"theme,omitempty"`
	Language    string                     `json:"language,omitempty"`
	State       services.GenerationState   `json:"state,omitempty"`
	Result      *services.GenerateResponse `json:"result,omitempty"`
	Content     string                     `json:"content,omitempty"`
}

const (
	TypeGenerate = "generate"
	TypeProgress = "progress"
	TypeResult   = "result"
	TypeError    = "error"
)

func NewHandler(generator DessertGenerator, progress ProgressSource, upgrader websocket.Upgrader) *Handler {
	return &Handler{generator: generator, progress: progress, upgrader: upgrader}
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

// HandleWebSocket accepts generate requests from an authenticated user and streams the state of each
// one until its result is sent.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, user *models.User) {
	log := zerolog.Ctx(r.Context()).With().Str("user_id", user.ID.String()).Logger()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &conn{ws: ws}
	defer ws.Close()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}

		switch msg.Type {
		case TypeGenerate:
			clientID := msg.RequestID
			if clientID == "" {
				clientID = uuid.NewString()
			}
			// The broker is process-wide, so the topic is never client-chosen. The client id is only echoed.
			req := services.GenerateRequest{
				UserID:      user.ID,
				Ingredients: msg.Ingredients,
				Theme:       models.Theme(msg.Theme),
				Language:    msg.Language,
				RequestID:   uuid.NewString(),
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				h.runGeneration(r.Context(), c, clientID, req, log)
			}()
		default:
			if err := c.send(Message{Type: TypeError, Content: "unknown message type"}); err != nil {
				return
			}
		}
	}
}

func (h *Handler) runGeneration(ctx context.Context, c *conn, clientID string, req services.GenerateRequest, log zerolog.Logger) {
	events := h.progress.Subscribe(req.RequestID)
	defer h.progress.Unsubscribe(req.RequestID, events)

	done := make(chan services.GenerateResponse, 1)
	go func() {
		done <- h.generator.Generate(ctx, req)
	}()

	forward := func(ev interface{}) {
		pe, ok := ev.(services.ProgressEvent)
		if !ok {
			return
		}
		if err := c.send(Message{Type: TypeProgress, RequestID: clientID, State: pe.State}); err != nil {
			log.Debug().Err(err).Msg("progress write failed")
		}
	}

	for {
		select {
		case ev := <-events:
			forward(ev)
		case resp := <-done:
			for len(events) > 0 {
				forward(<-events)
			}
			if err := c.send(Message{Type: TypeResult, RequestID: clientID, Result: &resp}); err != nil {
				log.Debug().Err(err).Msg("result write failed")
			}
			return
		}
	}
}
