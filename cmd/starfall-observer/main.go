package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"starfall-server/galaxy"
	"starfall-server/match"
	"starfall-server/protocol"
	"starfall-server/replica"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "server websocket URL")
	sid := flag.String("sid", "", "match to join (empty creates one)")
	pass := flag.String("pass", "", "match password")
	token := flag.String("token", "", "seat token from an earlier join")
	tier := flag.String("tier", "normal", "map size when creating a match")
	seed := flag.Int64("seed", 0, "map seed when creating a match (0 = random)")
	wait := flag.Duration("wait", 10*time.Second, "how long to wait for the first map")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := replica.Dial(ctx, *url)
	if err != nil {
		log.Fatalf("observer: %v", err)
	}
	client.OnMessage = func(env protocol.InEnvelope) {
		switch env.T {
		case protocol.MsgCreated, protocol.MsgJoined, protocol.MsgError:
			log.Printf("observer: %s %s", env.T, env.D)
		}
	}
	client.OnNotify = func(n match.Notification, applied bool) {
		if !applied {
			return
		}
		report(client.Cache(), n)
	}

	ready := client.AwaitMap(*wait)
	ready.Start(ctx)

	errc := make(chan error, 1)
	go func() { errc <- client.Run(ctx) }()

	switch {
	case *token != "":
		err = client.Auth(*token)
	case *sid != "":
		err = client.Join(*sid, *pass)
	default:
		err = client.Create("observer", *tier, *seed, *pass)
	}
	if err != nil {
		log.Fatalf("observer: %v", err)
	}

	if state := ready.Wait(ctx); state != replica.Ready {
		log.Fatalf("observer: map %s", state)
	}
	cache := client.Cache()
	log.Printf("observer: map v%d, %d constellations, %d links, %d stars, fingerprint verified=%v",
		cache.MapVersion(), len(cache.Constellations()), len(cache.Links()), len(cache.Stars()), cache.Verify())

	if err := <-errc; err != nil {
		log.Printf("observer: connection closed: %v", err)
	}
	applied, ignored := cache.Stats()
	log.Printf("observer: %d notifications applied, %d ignored as stale", applied, ignored)
}

func report(cache *replica.Cache, n match.Notification) {
	switch v := n.(type) {
	case match.StarChanged:
		log.Printf("observer: v%d star %d a=%d b=%d/%d (%s), constellation %d %s",
			v.Version, v.Star.ID, v.Star.DamageA, v.Star.DamageB, v.Star.MaxHP, v.Star.State(),
			v.Star.ConstellationID, cache.ConstellationState(v.Star.ConstellationID))
	case match.ResourceUpdated:
		log.Printf("observer: v%d faction %s resources %d (+%d)", v.Version, v.Faction, v.Total, v.Gain)
	case match.BonusUpdated:
		log.Printf("observer: v%d faction %s %s level %d", v.Version, v.Faction, v.Bonus, v.Level)
	case match.MatchEnded:
		log.Printf("observer: v%d match over, %s wins (A=%d B=%d neutral=%d)",
			v.Version, v.Winner, v.Counts.A, v.Counts.B, v.Counts.Neutral)
	case match.MapPublished:
		counts := cache.Counts()
		log.Printf("observer: v%d map %s seed %d, A=%d B=%d neutral=%d",
			v.Version, v.Snapshot.Tier, v.Snapshot.Seed, counts.Owned(galaxy.FactionA), counts.Owned(galaxy.FactionB), counts.Neutral)
	}
}
