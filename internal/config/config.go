// Package config loads server settings from an optional yaml file over
// built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// GameAddr is the game-facing WebSocket listener (clients run
	// /connect <host>:<port>). ViewerAddr serves the renderer/UI socket
	// and the status endpoint. The two are logically independent.
	GameAddr   string `yaml:"game_addr"`
	ViewerAddr string `yaml:"viewer_addr"`

	DataDir string `yaml:"data_dir"`

	// ChunkCacheSize bounds the in-memory chunk store; the oldest-inserted
	// record is evicted beyond it.
	ChunkCacheSize int `yaml:"chunk_cache_size"`

	// ChunkRadius is the ensure-present window around a travelling player.
	ChunkRadius int32 `yaml:"chunk_radius"`

	// TrackerTTLSeconds expires chunk requests the game never answered.
	TrackerTTLSeconds int `yaml:"tracker_ttl_seconds"`

	// PositionRecordEvery throttles durable position recording; live
	// broadcasts and chunk requests are never throttled.
	PositionRecordEvery int `yaml:"position_record_every"`

	// DisableIndex turns off the sqlite session index; the JSONL event log
	// is always written.
	DisableIndex bool `yaml:"disable_index"`

	// SubscribeEvents is the gameplay event subscription list sent on each
	// game connection.
	SubscribeEvents []string `yaml:"subscribe_events"`
}

func Defaults() Config {
	return Config{
		GameAddr:            ":19131",
		ViewerAddr:          ":8081",
		DataDir:             "./data",
		ChunkCacheSize:      200,
		ChunkRadius:         1,
		TrackerTTLSeconds:   120,
		PositionRecordEvery: 10,
		SubscribeEvents:     defaultEvents(),
	}
}

// Load reads path over the defaults. A missing file is not an error so the
// server runs config-free out of the box.
func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	if c.ChunkCacheSize <= 0 {
		c.ChunkCacheSize = 200
	}
	if c.PositionRecordEvery <= 0 {
		c.PositionRecordEvery = 1
	}
	if c.TrackerTTLSeconds <= 0 {
		c.TrackerTTLSeconds = 120
	}
	if len(c.SubscribeEvents) == 0 {
		c.SubscribeEvents = defaultEvents()
	}
	return c, nil
}

// TrackerTTL returns the pending-request expiry as a duration.
func (c Config) TrackerTTL() time.Duration {
	return time.Duration(c.TrackerTTLSeconds) * time.Second
}

func defaultEvents() []string {
	return []string{
		"BlockPlaced", "BlockBroken", "PlayerTravelled", "PlayerMessage",
		"ItemUsed", "ItemInteracted", "ItemCrafted", "ItemSmelted",
		"ItemEquipped", "ItemDropped", "ItemPickedUp", "PlayerDied",
		"MobKilled", "PlayerHurt", "PlayerAttack", "DoorUsed",
		"ChestOpened", "ContainerClosed", "ButtonPressed", "LeverUsed",
		"PressurePlateActivated", "PlayerJump", "PlayerSneak",
		"PlayerSprint", "PlayerSwim", "PlayerClimb", "PlayerGlide",
		"PlayerTeleport", "AwardAchievement", "PlayerTransform",
		"EntitySpawned", "EntityRemoved", "EntityInteracted",
		"WeatherChanged", "TimeChanged", "GameRulesUpdated", "PlayerEat",
		"PlayerSleep", "PlayerWake", "CameraUsed", "BookEdited",
		"BossKilled", "RaidCompleted", "TradeCompleted",
	}
}
