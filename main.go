package main

import (
	"log"

	api "outreach-backend/cmd/api"
	campaignDelivery "outreach-backend/internal/campaign/delivery"
	campaignDomain "outreach-backend/internal/campaign/domain"
	campaignRepo "outreach-backend/internal/campaign/repository"
	campaignUsecase "outreach-backend/internal/campaign/usecase"
	dispatchUsecase "outreach-backend/internal/dispatch/usecase"
	followupDelivery "outreach-backend/internal/followup/delivery"
	followupDomain "outreach-backend/internal/followup/domain"
	followupRepo "outreach-backend/internal/followup/repository"
	followupUsecase "outreach-backend/internal/followup/usecase"
	"outreach-backend/internal/jobs"
	trackingDelivery "outreach-backend/internal/tracking/delivery"
	trackingDomain "outreach-backend/internal/tracking/domain"
	trackingRepo "outreach-backend/internal/tracking/repository"
	trackingUsecase "outreach-backend/internal/tracking/usecase"
	"outreach-backend/pkg/config"
	"outreach-backend/pkg/database"
	"outreach-backend/pkg/mailbox"
	"outreach-backend/pkg/mailer"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&campaignDomain.Client{},
		&campaignDomain.Campaign{},
		&campaignDomain.Recipient{},
		&followupDomain.FollowupEmail{},
		&trackingDomain.Reply{},
		&trackingDomain.ProcessedMessage{},
		&jobs.CronLog{},
		&jobs.JobLease{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	clientRepository := campaignRepo.NewClientRepository(db)
	campaignRepository := campaignRepo.NewCampaignRepository(db)
	recipientRepository := campaignRepo.NewRecipientRepository(db)
	followupRepository := followupRepo.NewFollowupRepository(db)
	replyRepository := trackingRepo.NewReplyRepository(db)
	processedRepository := trackingRepo.NewProcessedMessageRepository(db)
	cronLogRepository := jobs.NewCronLogRepository(db)
	leaseStore := jobs.NewLeaseStore(db)

	// Mail transports
	smtpTransport := mailer.NewSMTPTransport()
	imapReader := mailbox.NewIMAPReader()

	// Initialize use cases (dependency injection)
	campaignUc := campaignUsecase.NewCampaignUsecase(campaignRepository, recipientRepository, cronLogRepository, cfg.ShareTokenSecret)
	aggregator := campaignUsecase.NewStatsAggregator(campaignRepository, recipientRepository)
	dispatchWorker := dispatchUsecase.NewWorker(
		campaignRepository, recipientRepository, clientRepository, followupRepository,
		smtpTransport, cfg.PublicBaseURL, cfg.MaxSendAttempts, cfg.RetryBackoffBase, cfg.RetryBackoffCap,
	)
	replyMatcher := trackingUsecase.NewReplyMatcher(
		campaignRepository, recipientRepository, clientRepository, followupRepository,
		replyRepository, processedRepository, imapReader,
		cfg.ReplyLookbackDays, cfg.ReplyMatchMinConfidence,
	)
	openTracker := trackingUsecase.NewOpenTracker(recipientRepository, campaignRepository, followupRepository)
	followupEngine := followupUsecase.NewEngine(campaignRepository, recipientRepository, followupRepository, followupUsecase.Thresholds{
		DeliveredNotOpenedMinutes: cfg.FollowupDeliveredNotOpenedMinutes,
		OpenedNotRepliedMinutes:   cfg.FollowupOpenedNotRepliedMinutes,
		MinGapMinutes:             cfg.FollowupMinGapMinutes,
	})

	// Background jobs: local tickers plus the HTTP trigger surface
	runner := jobs.NewRunner(leaseStore, cronLogRepository, cfg.Environment)
	runner.Register(jobs.JobDispatchWorker, cfg.DispatchInterval, dispatchWorker.Run)
	runner.Register(jobs.JobReplyMatcher, cfg.ReplyMatchInterval, replyMatcher.Run)
	runner.Register(jobs.JobStatsAggregator, cfg.StatsInterval, aggregator.Run)
	runner.Start()
	defer runner.Stop()

	// Initialize HTTP handlers
	campaignHandler := campaignDelivery.NewCampaignHandler(campaignUc, aggregator)
	followupHandler := followupDelivery.NewFollowupHandler(followupEngine)
	pixelHandler := trackingDelivery.NewPixelHandler(openTracker)
	triggerHandler := jobs.NewTriggerHandler(runner)

	handler := api.NewHandler(cfg, campaignHandler, followupHandler, pixelHandler, triggerHandler)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
