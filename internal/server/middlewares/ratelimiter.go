package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/filemirrorsync/filemirrorsync/internal/protocol"
)

var rateLimitStore = memory.NewStore()

// RateLimiter returns a per-IP rate limiter for the /api/sync surface,
// grounded on internal/server/middlewares/ratelimiter.go. formattedRate
// is a ulule/limiter/v3 formatted rate string, e.g. "100-M".
func RateLimiter(formattedRate string) gin.HandlerFunc {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		panic(err)
	}
	lim := limiter.New(rateLimitStore, rate)
	return mgin.NewMiddleware(
		lim,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.PureJSON(http.StatusTooManyRequests, protocol.NewAPIError(protocol.CodeInvalidRequest, "rate limit exceeded"))
		}),
	)
}
