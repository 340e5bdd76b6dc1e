// Command seed loads campaign and challenge fixtures from a YAML file into
// the database. It stands in for the platform's authoring layer during
// development.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guildops/challenge-engine/internal/config"
	"github.com/guildops/challenge-engine/internal/database"
	"github.com/guildops/challenge-engine/internal/model"
	"github.com/guildops/challenge-engine/internal/repository"
)

// Fixture is the root of a seed file.
type Fixture struct {
	Campaigns []CampaignFixture `yaml:"campaigns"`
}

// CampaignFixture describes one campaign and its challenges.
type CampaignFixture struct {
	GuildID        string             `yaml:"guild_id"`
	Type           string             `yaml:"type"`
	State          string             `yaml:"state"`
	StartTime      time.Time          `yaml:"start_time"`
	ReleaseDelay   string             `yaml:"release_delay"`
	Scoring        string             `yaml:"scoring"`
	StartingPoints int                `yaml:"starting_points"`
	DecreaseStep   int                `yaml:"decrease_step"`
	Challenges     []ChallengeFixture `yaml:"challenges"`
}

// ChallengeFixture describes one challenge, including its Lua generation
// routine inline.
type ChallengeFixture struct {
	Position int    `yaml:"position"`
	Title    string `yaml:"title"`
	Body     string `yaml:"body"`
	Routine  string `yaml:"routine"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <fixture.yaml>\n", os.Args[0])
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read fixture file: %v", err)
	}

	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		log.Fatalf("Failed to parse fixture file: %v", err)
	}

	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	campaignRepo := repository.NewCampaignRepository()
	challengeRepo := repository.NewChallengeRepository()

	for _, cf := range fixture.Campaigns {
		delay, err := time.ParseDuration(cf.ReleaseDelay)
		if err != nil {
			log.Fatalf("Invalid release_delay %q: %v", cf.ReleaseDelay, err)
		}

		campaign := &model.Campaign{
			GuildID:        cf.GuildID,
			Type:           model.CampaignType(cf.Type),
			State:          model.CampaignState(cf.State),
			StartTime:      cf.StartTime,
			ReleaseDelay:   int64(delay.Seconds()),
			ScoringType:    model.ScoringType(cf.Scoring),
			StartingPoints: cf.StartingPoints,
			DecreaseStep:   cf.DecreaseStep,
		}

		// Campaign and challenges land atomically.
		tx, err := db.Postgres.BeginTxx(ctx, nil)
		if err != nil {
			log.Fatalf("Failed to begin transaction: %v", err)
		}

		if err := campaignRepo.CreateCampaign(tx, campaign); err != nil {
			tx.Rollback()
			log.Fatalf("Failed to create campaign: %v", err)
		}

		for _, chf := range cf.Challenges {
			challenge := &model.Challenge{
				CampaignID:        campaign.ID,
				OrderPosition:     chf.Position,
				Title:             chf.Title,
				Body:              chf.Body,
				GenerationRoutine: chf.Routine,
			}
			if err := challengeRepo.CreateChallenge(tx, challenge); err != nil {
				tx.Rollback()
				log.Fatalf("Failed to create challenge %q: %v", chf.Title, err)
			}
		}

		if err := tx.Commit(); err != nil {
			log.Fatalf("Failed to commit transaction: %v", err)
		}

		log.Printf("Seeded campaign %d (%s) with %d challenges",
			campaign.ID, campaign.GuildID, len(cf.Challenges))
	}
}
