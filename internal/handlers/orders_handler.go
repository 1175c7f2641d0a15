package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/generator"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/orders"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/validation"
)

// MetricSubmitted counts orders accepted through the API.
const MetricSubmitted = "ordersSubmitted"

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	DynamoDBClient   aws.DynamoDBAPI
	SQSClient        aws.SQSAPI
	IdempotencyTable string
	OrdersTable      string
	QueueURL         string
	TTLWindow        time.Duration

	Sources            []string
	BatchSize          int
	DeliveryOffsetDays int
	Location           *time.Location

	Logger  *zap.Logger
	Metrics aws.Counter

	// NewOrderID and Now default to uuid-derived ids and the wall clock.
	NewOrderID func() int64
	Now        func() time.Time
}

type ordersHandler struct {
	cfg        HandlerConfig
	idemp      *idempotency.Store
	store      *orders.Store
	publisher  *aws.Publisher
	generator  *generator.Generator
	validator  validationFunc
	bindQuery  validationFunc
	newOrderID func() int64
	now        func() time.Time
}

type validationFunc func(c *gin.Context, out interface{}) error

// RegisterOrdersRoutes registers routes for order API.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = aws.NopCounter{}
	}
	v := validation.New(cfg.Sources...)
	ordersStore := orders.NewStore(cfg.DynamoDBClient, cfg.OrdersTable)
	publisher := aws.NewPublisher(cfg.SQSClient, cfg.QueueURL)

	h := &ordersHandler{
		cfg:       cfg,
		idemp:     idempotency.NewStore(cfg.DynamoDBClient, cfg.IdempotencyTable, cfg.TTLWindow),
		store:     ordersStore,
		publisher: publisher,
		generator: generator.New(ordersStore, publisher, cfg.Metrics, cfg.Logger, generator.Options{
			BatchSize:          cfg.BatchSize,
			Sources:            cfg.Sources,
			DeliveryOffsetDays: cfg.DeliveryOffsetDays,
			Location:           cfg.Location,
		}),
		validator:  func(c *gin.Context, out interface{}) error { return validation.BindAndValidate(c, out, v) },
		bindQuery:  func(c *gin.Context, out interface{}) error { return validation.BindQueryAndValidate(c, out, v) },
		newOrderID: cfg.NewOrderID,
		now:        cfg.Now,
	}
	if h.newOrderID == nil {
		h.newOrderID = func() int64 { return int64(uuid.New().ID()) }
	}
	if h.now == nil {
		h.now = time.Now
	}

	r.POST("/orders", h.submit)
	r.POST("/orders/batch", h.batch)
	r.GET("/orders/:id", h.get)
}

func (h *ordersHandler) submit(c *gin.Context) {
	ctx := c.Request.Context()
	log := h.cfg.Logger

	// Bind + validate request
	var req validation.SubmitOrderRequest
	if err := h.validator(c, &req); err != nil {
		// already wrote a 400
		return
	}

	// Require idempotency key header
	idempKey := c.GetHeader("Idempotency-Key")
	if idempKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
		return
	}
	canonical, _ := json.Marshal(req)
	requestHash := idempotency.Fingerprint(canonical)

	now := h.now()
	if req.DeliveryDate < orders.DateOf(now, h.cfg.Location) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delivery_date_in_past"})
		return
	}

	order := orders.Order{
		OrderID:       h.newOrderID(),
		Product:       req.Product,
		Timestamp:     now.UTC().Format(orders.TimestampLayout),
		Source:        req.Source,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		DeliveryDate:  req.DeliveryDate,
		OrderStatus:   orders.StatusSubmitted,
	}
	log = log.With(zap.String("idempotencyKey", idempKey), zap.Int64("orderId", order.OrderID))

	// Attempt the transact write to create idempotency + order atomically
	rec := h.idemp.NewRecord(idempKey, order.OrderID, requestHash)
	err := h.store.CreateWithIdempotencyTransaction(ctx, h.idemp.TableName(), rec, order, h.idemp.TTL(), now)
	if errors.Is(err, orders.ErrDuplicateRequest) {
		h.replay(c, idempKey, requestHash)
		return
	}
	if errors.Is(err, orders.ErrOrderExists) {
		// nothing was written, so retrying with the same key is safe
		log.Warn("order id collision", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": "order_id_conflict"})
		return
	}
	if err != nil {
		log.Error("failed to create order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	// Records exist; now enqueue. If the send fails the idempotency record is marked FAILED.
	body, _ := json.Marshal(order)
	err = h.publisher.Send(ctx, aws.Message{
		Body:            string(body),
		GroupID:         generator.OrderingGroupID,
		DeduplicationID: strconv.FormatInt(order.OrderID, 10),
		Attributes: map[string]string{
			"source":         order.Source,
			"idempotencyKey": idempKey,
		},
	})
	if err != nil {
		log.Error("failed to enqueue order", zap.Error(err))
		if markErr := h.idemp.MarkFailed(ctx, idempKey, fmt.Sprintf("sqs_send_failed: %v", err)); markErr != nil {
			log.Warn("failed to mark idempotency record", zap.Error(markErr))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
		return
	}

	resp := gin.H{"orderId": order.OrderID, "orderStatus": order.OrderStatus, "deliveryDate": order.DeliveryDate}
	responseBody, _ := json.Marshal(resp)
	if err := h.idemp.MarkDone(ctx, idempKey, string(responseBody), http.StatusCreated); err != nil {
		log.Warn("failed to mark idempotency record", zap.Error(err))
	}

	log.Info("order submitted", zap.String("source", order.Source), zap.String("deliveryDate", order.DeliveryDate))
	h.cfg.Metrics.Count(ctx, MetricSubmitted, 1)
	c.Header("Location", fmt.Sprintf("/orders/%d", order.OrderID))
	c.JSON(http.StatusCreated, resp)
}

// replay answers a retried request from its idempotency record.
func (h *ordersHandler) replay(c *gin.Context, key, requestHash string) {
	rec, err := h.idemp.Get(c.Request.Context(), key)
	if err != nil {
		h.cfg.Logger.Error("idempotency lookup failed", zap.String("idempotencyKey", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction_failed_no_idempotency_record"})
		return
	}
	if !rec.Matches(requestHash) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency_key_reused"})
		return
	}

	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" && json.Valid([]byte(rec.ResponseBody)) {
			c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"orderId": rec.OrderID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "orderId": rec.OrderID})
	case idempotency.StatusFailed:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "previous_attempt_failed", "orderId": rec.OrderID})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
	}
}

// batch runs the order generator, optionally guarded by an idempotency key.
func (h *ordersHandler) batch(c *gin.Context) {
	ctx := c.Request.Context()

	var q validation.BatchQuery
	if err := h.bindQuery(c, &q); err != nil {
		return
	}
	size := q.Size
	if size == 0 {
		size = h.cfg.BatchSize
	}

	idempKey := c.GetHeader("Idempotency-Key")
	requestHash := idempotency.Fingerprint([]byte("batch:" + strconv.Itoa(size)))
	if idempKey != "" {
		created, err := h.idemp.CreateIfNotExists(ctx, idempKey, 0, requestHash)
		if err != nil {
			h.cfg.Logger.Error("failed to create idempotency record", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
			return
		}
		if !created {
			h.replay(c, idempKey, requestHash)
			return
		}
	}

	res := h.generator.GenerateN(ctx, size)
	if idempKey != "" {
		var err error
		if res.StatusCode == http.StatusOK {
			body, _ := json.Marshal(res)
			err = h.idemp.MarkDone(ctx, idempKey, string(body), res.StatusCode)
		} else {
			err = h.idemp.MarkFailed(ctx, idempKey, "batch generation incomplete")
		}
		if err != nil {
			h.cfg.Logger.Warn("failed to mark idempotency record", zap.Error(err))
		}
	}
	c.JSON(res.StatusCode, res)
}

func (h *ordersHandler) get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_order_id"})
		return
	}
	o, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		h.cfg.Logger.Error("failed to read order", zap.Int64("orderId", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}
	if o == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
		return
	}
	c.JSON(http.StatusOK, o)
}
