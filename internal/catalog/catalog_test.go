package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmbedded(t *testing.T) {
	c, err := Load("")
	if err != nil { t.Fatalf("Load: %v", err) }
	if len(c.Dinos()) != 18 { t.Fatalf("dinos = %d", len(c.Dinos())) }

	d, ok := c.Dino("Carnotaurus")
	if !ok || d.Class != "BP_Carnotaurus_C" || d.Price != 200 { t.Fatalf("Dino(Carnotaurus) = %+v, %v", d, ok) }
	if d2, ok := c.Dino("bp_carnotaurus_c"); !ok || d2 != d { t.Fatalf("class lookup = %+v", d2) }
	if d3, ok := c.Dino("Карнотавр"); !ok || d3 != d { t.Fatalf("display lookup = %+v", d3) }
	if _, ok := c.Dino("Spinosaurus"); ok { t.Fatalf("unknown species found") }

	if c.DisplayName("BP_Trex_C") != "Т-Рекс" { t.Fatalf("DisplayName = %q", c.DisplayName("BP_Trex_C")) }
	if c.DisplayName("BP_Unknown_C") != "Unknown" { t.Fatalf("DisplayName fallback = %q", c.DisplayName("BP_Unknown_C")) }

	tiers := c.Tiers()
	if len(tiers) != 3 || tiers[0].Name != "bronze" { t.Fatalf("tiers = %+v", tiers) }
	gold, ok := c.Tier("GOLD")
	if !ok || gold.DinoSlots != 4 || gold.Duration() != 30*24*time.Hour { t.Fatalf("gold = %+v", gold) }
}

func TestLoadOverride(t *testing.T) {
	dir := t.TempDir()
	body := "tiers:\n  - {name: vip, price: 10, dino_slots: 9, duration_days: 7}\n"
	if err := os.WriteFile(filepath.Join(dir, tiersFile), []byte(body), 0o644); err != nil { t.Fatalf("write: %v", err) }

	c, err := Load(dir)
	if err != nil { t.Fatalf("Load: %v", err) }
	if len(c.Tiers()) != 1 { t.Fatalf("tiers = %+v", c.Tiers()) }
	if _, ok := c.Tier("vip"); !ok { t.Fatalf("override tier missing") }
	if len(c.Dinos()) != 18 { t.Fatalf("dinos should stay embedded") }
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	body := "dinosaurs:\n  - {name: A, class: BP_A_C, price: 1}\n  - {name: B, class: bp_a_c, price: 2}\n"
	if err := os.WriteFile(filepath.Join(dir, dinosFile), []byte(body), 0o644); err != nil { t.Fatalf("write: %v", err) }
	if _, err := Load(dir); err == nil { t.Fatalf("expected duplicate class error") }
}
