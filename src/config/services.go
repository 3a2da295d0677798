package config

import (
	"log"
	"strconv"
	"time"

	"github.com/stake-plus/govdecisions/src/data"
	"gorm.io/gorm"
)

// ApplySettings overlays active rows of the settings table onto cfg.
// Values that fail to parse are logged and skipped.
func ApplySettings(db *gorm.DB, cfg *Config) {
	if err := data.LoadSettings(db); err != nil {
		log.Printf("config: settings table unavailable: %v", err)
		return
	}

	overlayString(&cfg.Discord.Token, "discord_token")
	overlayString(&cfg.Discord.GuildID, "guild_id")
	overlayString(&cfg.Discord.VoterRoleID, "voter_role_id")
	overlayString(&cfg.Discord.NotifyChannelID, "notify_channel_id")
	overlayString(&cfg.HTTP.JWTSecret, "jwt_secret")
	overlayString(&cfg.Redis.URL, "redis_url")
	overlayString(&cfg.NATS.URL, "nats_url")
	overlayInt(&cfg.Engine.ApprovalPercentage, "default_approval_percentage")
	overlayInt(&cfg.Engine.AutoCloseHours, "default_auto_close_hours")
	overlayInt(&cfg.Engine.SweepWorkers, "sweep_workers")
	overlayDuration(&cfg.Engine.SweepInterval, "sweep_interval")
	overlayBool(&cfg.Engine.ReconcileMembers, "reconcile_members")
}

func overlayString(dst *string, name string) {
	if v := data.GetSetting(name); v != "" {
		*dst = v
	}
}

func overlayInt(dst *int, name string) {
	v := data.GetSetting(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: setting %s=%q is not an integer", name, v)
		return
	}
	*dst = n
}

func overlayDuration(dst *time.Duration, name string) {
	v := data.GetSetting(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: setting %s=%q is not a duration", name, v)
		return
	}
	*dst = d
}

func overlayBool(dst *bool, name string) {
	v := data.GetSetting(name)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: setting %s=%q is not a boolean", name, v)
		return
	}
	*dst = b
}
