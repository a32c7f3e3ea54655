package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/mariocelzo/Target-sub000/internal/config"
	"github.com/mariocelzo/Target-sub000/internal/email"
	"github.com/mariocelzo/Target-sub000/internal/models"
	"github.com/mariocelzo/Target-sub000/internal/services"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// TaskType defines the type of a background task.
const (
	TypeOfferCleanup = "offer:cleanup"
	TypeOfferNotify  = "offer:notify"
)

// --- Task Client (Enqueuing tasks) ---

// Client wraps an asynq.Client behind the services.ITaskQueue interface so
// the services never import asynq directly.
type Client struct {
	inner *asynq.Client
}

func NewClient(rdb *redis.Client) *Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return &Client{inner: asynq.NewClient(clientOpt)}
}

func (c *Client) Close() error {
	return c.inner.Close()
}

// OfferCleanupPayload identifies the listing whose open offers should be purged.
type OfferCleanupPayload struct {
	ListingID utils.SixID `json:"listing_id"`
}

// EnqueueOfferCleanup schedules removal of all open offers on a listing.
func (c *Client) EnqueueOfferCleanup(ctx context.Context, listingID utils.SixID) error {
	payload, err := json.Marshal(OfferCleanupPayload{ListingID: listingID})
	if err != nil {
		return fmt.Errorf("failed to marshal offer cleanup payload: %w", err)
	}
	task := asynq.NewTask(TypeOfferCleanup, payload)
	if _, err := c.inner.EnqueueContext(ctx, task, asynq.Queue("default"), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", TypeOfferCleanup, err)
	}
	return nil
}

// EnqueueOfferNotify schedules an email notification for an offer event.
func (c *Client) EnqueueOfferNotify(ctx context.Context, n services.OfferNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal offer notify payload: %w", err)
	}
	task := asynq.NewTask(TypeOfferNotify, payload)
	if _, err := c.inner.EnqueueContext(ctx, task, asynq.Queue("low"), asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", TypeOfferNotify, err)
	}
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg            *config.Config
	emailSender    email.Sender
	offerService   services.IOfferService
	listingService services.IListingService
	userService    services.IUserService
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	offerService services.IOfferService,
	listingService services.IListingService,
	userService services.IUserService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:            cfg,
		emailSender:    emailSender,
		offerService:   offerService,
		listingService: listingService,
		userService:    userService,
	}
}

// SetupServer configures an Asynq server and the handler mux for it.
// The caller is responsible for calling srv.Run(mux).
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeOfferCleanup, processor.HandleOfferCleanupTask)
	mux.HandleFunc(TypeOfferNotify, processor.HandleOfferNotifyTask)
	fmt.Println("Registered background task handlers.")

	return srv, mux
}

// --- Task Handlers ---

// HandleOfferCleanupTask deletes the open offers left behind when a listing is
// removed or sold. Accepted offers are never touched here.
func (p *TaskProcessor) HandleOfferCleanupTask(ctx context.Context, t *asynq.Task) error {
	var payload OfferCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal offer cleanup payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ListingID.IsZero() {
		return fmt.Errorf("offer cleanup payload has zero listing ID: %w", asynq.SkipRetry)
	}

	deleted, err := p.offerService.DeleteOpenOffers(ctx, payload.ListingID)
	if err != nil {
		return fmt.Errorf("failed to delete open offers for listing %s: %w", payload.ListingID, err)
	}
	log.Printf("Offer cleanup for listing %s removed %d open offer(s)", payload.ListingID, deleted)
	return nil
}

// HandleOfferNotifyTask emails the counterparty about an offer event, honouring
// the recipient's notification preferences.
func (p *TaskProcessor) HandleOfferNotifyTask(ctx context.Context, t *asynq.Task) error {
	var n services.OfferNotification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		return fmt.Errorf("failed to unmarshal offer notify payload: %v: %w", err, asynq.SkipRetry)
	}

	var recipientID utils.SixID
	switch n.Kind {
	case services.OfferNotifySubmitted:
		recipientID = n.SellerID // seller hears about new offers
	case services.OfferNotifyAccepted:
		recipientID = n.BuyerID // buyer hears about acceptance
	default:
		return fmt.Errorf("unknown offer notification kind %q: %w", n.Kind, asynq.SkipRetry)
	}

	recipient, err := p.userService.FindByID(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("failed to load notification recipient %s: %w", recipientID, err)
	}
	if !recipient.NotificationPreferences.Offer {
		log.Printf("Offer notifications disabled for user %s, skipping %s email", recipientID, n.Kind)
		return nil
	}

	title := "your listing"
	if listing, err := p.listingService.FindListingByID(ctx, n.ListingID); err == nil {
		title = fmt.Sprintf("%q", listing.Title)
	}

	var subject, body string
	amount := formatPrice(n.Amount)
	switch n.Kind {
	case services.OfferNotifySubmitted:
		subject = fmt.Sprintf("New offer of %s on %s", amount, title)
		body = fmt.Sprintf("You received an offer of %s on %s. Open your dashboard to review it.", amount, title)
	case services.OfferNotifyAccepted:
		subject = fmt.Sprintf("Your offer of %s was accepted", amount)
		body = fmt.Sprintf("The seller accepted your offer of %s on %s. An order has been created with your shipping details.", amount, title)
	}

	rawMessage := buildRawMessage(p.cfg.SmtpFromAddress, recipient.Email, subject, body)
	if err := p.emailSender.Send(ctx, []string{recipient.Email}, subject, rawMessage); err != nil {
		fmt.Printf("Email sending failed (will retry?): %v\n", err)
		return err
	}
	return nil
}

func formatPrice(p models.Price) string {
	return fmt.Sprintf("%.2f %s", p.Value, p.CurrencyCode)
}

// buildRawMessage assembles a plain-text email with the minimal headers SMTP
// relays expect.
func buildRawMessage(from, to, subject, body string) []byte {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", to))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", from))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")
	return []byte(sb.String())
}
