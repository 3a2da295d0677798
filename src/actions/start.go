package actions

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stake-plus/govdecisions/src/api/webserver"
	"github.com/stake-plus/govdecisions/src/channels"
	"github.com/stake-plus/govdecisions/src/config"
	"github.com/stake-plus/govdecisions/src/decisions"
	"github.com/stake-plus/govdecisions/src/decisions/events"
	"github.com/stake-plus/govdecisions/src/decisions/oracle"
	"github.com/stake-plus/govdecisions/src/decisions/scheduler"
	"github.com/stake-plus/govdecisions/src/decisions/store"
	"github.com/stake-plus/govdecisions/src/discord"
	"github.com/stake-plus/govdecisions/src/metrics"
	"gorm.io/gorm"
)

// Build assembles the engine and every enabled module without starting
// anything. Integrations with no configuration are skipped.
func Build(cfg *config.Config, db *gorm.DB) (*Runtime, error) {
	rt := &Runtime{Manager: NewManager(), Metrics: metrics.New(nil)}
	fail := func(err error) (*Runtime, error) {
		rt.Close()
		return nil, err
	}

	fanout := events.NewFanout()
	fanout.Add("log", events.Log{})

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fail(fmt.Errorf("actions: redis url: %w", err))
		}
		rdb = redis.NewClient(opts)
		rt.onClose("redis", rdb.Close)
		fanout.Add("redis", events.NewRedisStream(rdb, cfg.Redis.Stream, cfg.Redis.StreamMaxLen))
		log.Printf("actions: publishing events to redis stream %s", cfg.Redis.Stream)
	}

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("govdecisions"))
		if err != nil {
			return fail(fmt.Errorf("actions: nats connect: %w", err))
		}
		rt.onClose("nats", func() error { return nc.Drain() })
		fanout.Add("nats", events.NewNATS(nc, cfg.NATS.SubjectPrefix))
		log.Printf("actions: publishing events to nats %s.*", cfg.NATS.SubjectPrefix)
	}

	// The session only connects to the gateway when the bot module starts.
	var members oracle.Membership
	var session *discordgo.Session
	if cfg.Discord.Token != "" {
		s, err := discord.NewSession(cfg.Discord)
		if err != nil {
			return fail(err)
		}
		session = s
		members = discord.NewMembership(s, cfg.Discord.GuildID, cfg.Discord.VoterRoleID)
		if rdb != nil {
			members = oracle.NewCached(members, rdb, cfg.Redis.MemberCacheTTL)
		}
		if cfg.Discord.NotifyChannelID != "" {
			fanout.Add("discord", discord.NewNotifier(s, cfg.Discord.NotifyChannelID))
		}
	} else {
		log.Printf("actions: discord disabled, group sizes come from channel config")
	}

	st := store.New(db, store.WithMaxRetries(cfg.Engine.MaxRetries))
	engine := decisions.New(st,
		decisions.WithEmitter(fanout),
		decisions.WithMetrics(rt.Metrics),
		decisions.WithSweepWorkers(cfg.Engine.SweepWorkers),
		decisions.WithSweepItemTimeout(cfg.Engine.SweepItemTimeout),
	)
	chans := channels.NewStore(db, channels.Defaults{
		ApprovalPercentage: cfg.Engine.ApprovalPercentage,
		AutoCloseHours:     cfg.Engine.AutoCloseHours,
	})
	rt.Service = decisions.NewService(engine, chans, members)

	var reconciler scheduler.Reconciler
	if cfg.Engine.ReconcileMembers && members != nil {
		reconciler = rt.Service
	}
	if err := rt.Manager.Add(scheduler.New(scheduler.Config{
		Interval:    cfg.Engine.SweepInterval,
		PassTimeout: cfg.Engine.SweepInterval,
	}, engine, reconciler, nil)); err != nil {
		return fail(err)
	}

	if session != nil {
		if err := rt.Manager.Add(discord.NewBot(cfg.Discord, session, rt.Service)); err != nil {
			return fail(err)
		}
	}

	if cfg.HTTP.JWTSecret == "" {
		log.Printf("actions: no jwt secret configured, REST surface disabled")
	} else if err := rt.Manager.Add(webserver.NewServer(cfg.HTTP.Listen, webserver.Deps{
		Service:     rt.Service,
		Channels:    chans,
		Metrics:     rt.Metrics,
		JWTSecret:   []byte(cfg.HTTP.JWTSecret),
		CORSOrigins: cfg.HTTP.CORSOrigins,
		RateLimit:   cfg.HTTP.RateLimitPerMinute,
	})); err != nil {
		return fail(err)
	}

	return rt, nil
}

// StartAll builds the runtime and starts its modules.
func StartAll(ctx context.Context, cfg *config.Config, db *gorm.DB) (*Runtime, error) {
	rt, err := Build(cfg, db)
	if err != nil {
		return nil, err
	}
	if err := rt.Manager.Start(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("actions: start: %w", err)
	}
	log.Printf("actions: running %v", rt.Manager.Names())
	return rt, nil
}
