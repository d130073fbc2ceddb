package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"waitlist-referral-system/handlers"
	"waitlist-referral-system/middleware"
	"waitlist-referral-system/models"
	"waitlist-referral-system/services"
	"waitlist-referral-system/utils"
	"waitlist-referral-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	// TranslateError makes uniqueness violations surface as
	// gorm.ErrDuplicatedKey — the code registry and credit ledger depend on it.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.ReferralAccount{},
		&models.ReferralEvent{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	codeRegistry := services.NewCodeRegistry(db)
	referralService := services.NewReferralService(db, codeRegistry)
	leaderboardService := services.NewLeaderboardService(db)

	// --- CONFIGURE the waitlist service the signup sync worker polls ---
	waitlistServiceURL := os.Getenv("WAITLIST_SERVICE_URL")
	if waitlistServiceURL == "" {
		log.Fatal("WAITLIST_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("REFERRAL_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("REFERRAL_SERVICE_TOKEN environment variable not set")
	}
	// --- END CONFIG ---

	syncWorker := workers.NewSignupSyncWorker(referralService, waitlistServiceURL, "/api/v1/public/signups", serviceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncWorker.Start(ctx)

	referralService.StartLedgerAuditScheduler()

	// ✅ Setup routes — enforced Gateway auth everywhere. Leaderboard first:
	// its public route must not fall under the referral routes' user-context
	// group, which mounts on "/".
	handlers.SetupLeaderboardRoutes(app, leaderboardService)
	handlers.SetupReferralRoutes(app, referralService, codeRegistry)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Signup Sync Worker running")
	log.Println("✅ Ledger audit scheduler running (hourly)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")

	<-ctx.Done()
	log.Println("Shutting down server...")
}
