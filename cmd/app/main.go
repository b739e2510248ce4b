package main

import (
	"database/sql"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	jwtware "github.com/gofiber/jwt/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/wichananm65/pet-shop-payment/internal/audit"
	"github.com/wichananm65/pet-shop-payment/internal/cart"
	"github.com/wichananm65/pet-shop-payment/internal/config"
	"github.com/wichananm65/pet-shop-payment/internal/gateway"
	"github.com/wichananm65/pet-shop-payment/internal/order"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	app := fiber.New()
	setupCORS(app)

	db := mustOpenDB(cfg.DatabaseURL)
	defer db.Close()
	ensureSchema(db)

	cartRepo := cart.NewPostgresRepository(db)
	orderRepo := order.NewPostgresRepository(db, cartRepo)
	codec := gateway.NewCodec(cfg.VNPHashSecret)
	loc := gateway.LoadLocation(cfg.VNPTimezone)

	orderService := order.NewService(orderRepo, cartRepo, codec, order.GatewaySettings{
		TmnCode:   cfg.VNPTmnCode,
		PayURL:    cfg.VNPPayURL,
		ReturnURL: cfg.VNPReturnURL,
		Locale:    cfg.VNPLocale,
	}, loc, audit.NewStdLogger())
	orderHandler := order.NewHandler(orderService)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := db.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "down"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// the gateway calls back without a token; register before the JWT
	// middleware so the return path never requires auth
	orderHandler.RegisterPublicRoutes(app)

	app.Use(jwtware.New(jwtware.Config{
		SigningKey: []byte(cfg.JWTSecret),
		// checkout accepts anonymous buyers: skip JWT when no token is
		// presented on a checkout POST, the handler then requires anonId
		Filter: func(c *fiber.Ctx) bool {
			if c.Method() != fiber.MethodPost {
				return false
			}
			if !strings.HasPrefix(c.Path(), "/api/v1/orders") {
				return false
			}
			return c.Get("Authorization") == ""
		},
	}))

	orderHandler.RegisterProtectedRoutes(app)
	orderHandler.RegisterAdminRoutes(app)

	log.Printf("starting payment service on %s", cfg.Addr)
	if err := app.Listen(cfg.Addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func setupCORS(app *fiber.App) {
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
}

func mustOpenDB(dbURL string) *sql.DB {
	if dbURL == "" {
		panic("DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		panic(err)
	}

	if err := db.Ping(); err != nil {
		panic(err)
	}

	return db
}

// ensureSchema creates the order, order-item and cart tables when they
// do not exist yet.
func ensureSchema(db *sql.DB) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			"orderID" TEXT PRIMARY KEY,
			"userID" INT,
			"anonID" TEXT,
			"contactName" TEXT NOT NULL,
			"contactPhone" TEXT NOT NULL,
			"contactEmail" TEXT,
			"contactAddress" TEXT NOT NULL,
			"totalAmount" numeric(12,2) NOT NULL DEFAULT 0,
			"orderStatus" TEXT NOT NULL,
			"paymentMethod" TEXT,
			"paymentStatus" TEXT NOT NULL,
			"transactionId" TEXT,
			"paymentDate" TEXT,
			"createdAt" TEXT,
			"updatedAt" TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			"itemID" SERIAL PRIMARY KEY,
			"orderID" TEXT NOT NULL,
			"productID" INT NOT NULL,
			quantity INT NOT NULL,
			"unitPrice" numeric(12,2) NOT NULL,
			ord INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items ("orderID")`,
		`CREATE TABLE IF NOT EXISTS carts (
			"cartID" SERIAL PRIMARY KEY,
			"userID" INT,
			"anonID" TEXT,
			status TEXT NOT NULL DEFAULT 'open',
			items jsonb NOT NULL DEFAULT '[]',
			"createdAt" TEXT,
			"updatedAt" TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			panic(err)
		}
	}
}
