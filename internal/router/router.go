package router

import (
	"time"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/config"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/handler"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/middleware"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services collects the service layer built at the composition root. The
// batch service in particular must be a single instance — it serializes
// concurrent deductions per product — so the HTTP surface and the workers
// share the same one.
type Services struct {
	Auth    service.AuthService
	Product service.ProductService
	Batch   service.BatchService
	Sale    service.SaleService
	Order   service.OrderService
	Loyalty service.LoyaltyService
}

// New wires handlers over the shared services and returns a configured Gin
// engine. Dependency graph: Handler ← Service ← Repository ← DB/Redis.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, promo handler.BreakerStater, svcs Services) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(svcs.Auth)
	usersH := handler.NewUsersHandler(svcs.Auth)
	productsH := handler.NewProductsHandler(svcs.Product)
	batchesH := handler.NewBatchesHandler(svcs.Batch)
	salesH := handler.NewSalesHandler(svcs.Sale)
	ordersH := handler.NewOrdersHandler(svcs.Order)
	loyaltyH := handler.NewLoyaltyHandler(svcs.Loyalty)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, promo))

	// Auth (public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(), authH.Login)
		auth.POST("/refresh", authH.Refresh)
	}

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		// Roles: cashier, manager, admin — declared per-endpoint
		v1.POST("/sales", middleware.RequireRole("cashier", "manager", "admin"), salesH.CreateSale)
		v1.GET("/sales", middleware.RequireRole("cashier", "manager", "admin"), salesH.ListSales)
		v1.GET("/sales/:id", middleware.RequireRole("cashier", "manager", "admin"), salesH.GetSale)
		v1.DELETE("/sales/:id", middleware.RequireRole("manager", "admin"), salesH.VoidSale)

		// Catalog — all roles read, admin writes
		v1.GET("/products", middleware.RequireRole("cashier", "manager", "admin"), productsH.ListProducts)
		v1.GET("/products/:id", middleware.RequireRole("cashier", "manager", "admin"), productsH.GetProduct)
		v1.POST("/products", middleware.RequireRole("admin"), productsH.CreateProduct)

		// Batch ledger — managers receive stock and adjust, everyone reads
		v1.GET("/batches", middleware.RequireRole("cashier", "manager", "admin"), batchesH.ListBatches)
		v1.GET("/batches/:id", middleware.RequireRole("cashier", "manager", "admin"), batchesH.GetBatch)
		v1.GET("/batches/:id/usage", middleware.RequireRole("manager", "admin"), batchesH.ListUsage)
		batches := v1.Group("/batches", middleware.RequireRole("manager", "admin"))
		{
			batches.POST("", batchesH.CreateBatch)
			batches.POST("/:id/adjust", batchesH.AdjustBatch)
		}

		// Online orders
		orders := v1.Group("/orders", middleware.RequireRole("cashier", "manager", "admin"))
		{
			orders.POST("", ordersH.CreateOrder)
			orders.GET("", ordersH.ListOrders)
			orders.GET("/:id", ordersH.GetOrder)
			orders.PATCH("/:id/status", ordersH.UpdateStatus)
			orders.POST("/:id/cancel", ordersH.CancelOrder)
			orders.POST("/:id/payment", ordersH.PaymentCallback)
		}

		// Loyalty
		v1.GET("/customers/:id/points", middleware.RequireRole("cashier", "manager", "admin"), loyaltyH.GetBalance)
		v1.GET("/customers/:id/points/history", middleware.RequireRole("cashier", "manager", "admin"), loyaltyH.GetHistory)

		// Users — admin only
		users := v1.Group("/users", middleware.RequireRole("admin"))
		{
			users.POST("", usersH.Create)
			users.GET("", usersH.List)
			users.DELETE("/:id", usersH.Deactivate)
		}
	}

	// Swagger UI — only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
