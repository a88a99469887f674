package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"tsu-loot/internal/modules/loot/transport"
)

func main() {
	prototype := flag.String("prototype", "grey_wolf", "NPC prototype name (required)")
	npcID := flag.Int64("npc-id", 1, "NPC entity ID")
	subject := flag.String("subject", "world.npc.dead", "Death event subject")
	aggressors := flag.String("aggressors", "", "Comma separated aggressors. Format: id[:player|npc]")
	pos := flag.String("pos", "0,0,0", "Death position x,y,z")
	flag.Parse()

	if *prototype == "" {
		log.Fatal("prototype is required")
	}

	ev := transport.DeathEvent{
		EventID:    uuid.NewString(),
		NPCID:      *npcID,
		Prototype:  *prototype,
		OccurredAt: time.Now().UTC(),
	}

	coords := strings.Split(*pos, ",")
	if len(coords) != 3 {
		log.Fatalf("invalid pos %q, want x,y,z", *pos)
	}
	var xyz [3]float32
	for i, c := range coords {
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 32)
		if err != nil {
			log.Fatalf("invalid coordinate %q: %v", c, err)
		}
		xyz[i] = float32(f)
	}
	ev.Position = transport.Position{X: xyz[0], Y: xyz[1], Z: xyz[2]}

	if *aggressors != "" {
		for _, raw := range strings.Split(*aggressors, ",") {
			segments := strings.Split(strings.TrimSpace(raw), ":")
			id, err := strconv.ParseInt(segments[0], 10, 64)
			if err != nil {
				log.Fatalf("invalid aggressor id %s: %v", raw, err)
			}
			kind := transport.KindPlayer
			if len(segments) >= 2 {
				kind = segments[1]
			}
			ev.Aggressors = append(ev.Aggressors, transport.Aggressor{ID: id, Kind: kind, Position: ev.Position})
		}
	}

	natsAddr := os.Getenv("NATS_ADDRESS")
	if natsAddr == "" {
		natsAddr = "localhost:4222"
	}
	nc, err := nats.Connect("nats://" + natsAddr)
	if err != nil {
		log.Fatalf("failed to connect NATS: %v", err)
	}
	defer nc.Close()

	data, err := json.Marshal(ev)
	if err != nil {
		log.Fatalf("marshal event failed: %v", err)
	}
	if err := nc.Publish(*subject, data); err != nil {
		log.Fatalf("publish failed: %v", err)
	}
	if err := nc.Flush(); err != nil {
		log.Fatalf("flush failed: %v", err)
	}

	fmt.Printf("Published death event %s (prototype=%s npc=%d aggressors=%d) to %s\n",
		ev.EventID, ev.Prototype, ev.NPCID, len(ev.Aggressors), *subject)
}
