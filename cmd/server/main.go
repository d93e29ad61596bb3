package main

import (
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/datachat/datachat/internal/chat"
	"github.com/datachat/datachat/internal/config"
	"github.com/datachat/datachat/internal/db"
	"github.com/datachat/datachat/internal/fewshot"
	"github.com/datachat/datachat/internal/httpapi"
	"github.com/datachat/datachat/internal/models"
	"github.com/datachat/datachat/internal/store/redisstore"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := gdb.AutoMigrate(
		&models.User{},
		&chat.Chat{},
		&chat.Turn{},
		&chat.Feedback{},
		&chat.Job{},
		&fewshot.Record{},
	); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	r := httpapi.NewRouter(gdb, cfg, rds)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Infof("server listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
