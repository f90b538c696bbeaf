package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/petvip_server/config"
	"github.com/qs3c/petvip_server/internal/api/middleware"
	"github.com/qs3c/petvip_server/internal/pkg/bankfeed"
	"github.com/qs3c/petvip_server/internal/pkg/lock"
	"github.com/qs3c/petvip_server/internal/pkg/response"
	"github.com/qs3c/petvip_server/internal/repository"
	"github.com/qs3c/petvip_server/internal/service"
	"github.com/qs3c/petvip_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testContext struct {
	DB     *gorm.DB
	Feed   *stubFeed
	Issuer *stubIssuer
}

type stubFeed struct {
	mu  sync.Mutex
	txs []bankfeed.Transaction
	err error
}

func (f *stubFeed) Recent(ctx context.Context) ([]bankfeed.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txs, f.err
}

// add 交易时间为当前时间，落在回溯窗口内
func (f *stubFeed) add(id string, amount int64, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, bankfeed.Transaction{
		ID:         id,
		AmountIn:   decimal.NewFromInt(amount),
		Content:    content,
		OccurredAt: time.Now(),
	})
}

type stubIssuer struct {
	image []byte
	err   error
}

func (s *stubIssuer) Issue(ctx context.Context, amount decimal.Decimal, memo string) ([]byte, error) {
	return s.image, s.err
}

func setupVipHandler(t *testing.T, mutate ...func(*config.PaymentConfig)) (*VipHandler, *testContext, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := &config.PaymentConfig{
		LookbackMinutes: 30,
		PollWorkers:     1,
		LockTTLSeconds:  5,
		Timezone:        "UTC",
		Plans: []config.PlanConfig{
			{Months: 1, Price: "50000"},
			{Months: 3, Price: "100000"},
		},
	}
	for _, m := range mutate {
		m(cfg)
	}

	ctx := &testContext{
		DB:     db,
		Feed:   &stubFeed{},
		Issuer: &stubIssuer{image: []byte{0x89, 'P', 'N', 'G'}},
	}

	clock := service.NewClock(time.UTC)
	vipRepo := repository.NewVipRepository(db)

	paymentService, err := service.NewPaymentService(
		vipRepo,
		repository.NewUserRepository(db),
		ctx.Feed,
		ctx.Issuer,
		lock.NewLocalLocker(),
		clock,
		cfg,
	)
	require.NoError(t, err)

	vipService, err := service.NewVipService(vipRepo, clock, cfg)
	require.NoError(t, err)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return NewVipHandler(paymentService, vipService), ctx, cleanup
}

func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}
