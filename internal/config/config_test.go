package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"platecrane/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "platecrane")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.SocketPath != filepath.Join(wantState, "platecrane.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.Paths.SocketPath)
	}
	if cfg.Paths.LedgerDB != filepath.Join(wantState, "ledger.db") {
		t.Fatalf("unexpected ledger db: %q", cfg.Paths.LedgerDB)
	}
	if cfg.Device.Transport != config.TransportUSB {
		t.Fatalf("expected usb transport, got %q", cfg.Device.Transport)
	}
	if cfg.Device.VendorID != 0x7513 || cfg.Device.ProductID != 0x0002 {
		t.Fatalf("unexpected usb ids %#x/%#x", cfg.Device.VendorID, cfg.Device.ProductID)
	}
	if cfg.Motion.EnforceStackCapacity {
		t.Fatal("expected stack capacity checks disabled by default")
	}
	if cfg.LockPath() != filepath.Join(wantState, "platecraned.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
}

func TestDefaultLocationsNormalized(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Locations) != 10 {
		t.Fatalf("expected 10 default locations, got %d", len(cfg.Locations))
	}
	tower1 := cfg.Locations["tower1"]
	if tower1.PlateType != "pcr_plate" || tower1.Count != 1 || !tower1.HasLid {
		t.Fatalf("unexpected tower1: %+v", tower1)
	}
	exchange := cfg.Locations["exchange"]
	if exchange.PlaceDepth != -380 || exchange.SettleDepth != -30 {
		t.Fatalf("unexpected exchange depths: %+v", exchange)
	}
	nest := cfg.Locations["lidnest2"]
	if nest.Kind != config.KindLidNest || nest.PlaceDepth != -400 || nest.Capacity != 1 {
		t.Fatalf("unexpected lidnest2: %+v", nest)
	}
	if cfg.Locations["trash"].Position.R != 259.2688 {
		t.Fatalf("unexpected trash position: %+v", cfg.Locations["trash"].Position)
	}
}

func TestLoadCustomConfigMergesLocations(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	configPath := filepath.Join(tempDir, "config.toml")

	payload := struct {
		Device struct {
			Transport string `toml:"transport"`
			Address   string `toml:"address"`
		} `toml:"device"`
		Motion struct {
			MaxWaitSeconds       int  `toml:"max_wait_seconds"`
			EnforceStackCapacity bool `toml:"enforce_stack_capacity"`
		} `toml:"motion"`
		Locations map[string]config.Location `toml:"locations"`
	}{}
	payload.Device.Transport = "TCP"
	payload.Device.Address = " 127.0.0.1:7070 "
	payload.Motion.MaxWaitSeconds = 0
	payload.Motion.EnforceStackCapacity = true
	payload.Locations = map[string]config.Location{
		"tower2": {Kind: "Tower", PlateType: "96_well", Count: 3, HasLid: true},
		"tower6": {Kind: "tower", PlateType: "96_well", Count: 0, HasLid: true, Capacity: 20},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Device.Transport != config.TransportTCP || cfg.Device.Address != "127.0.0.1:7070" {
		t.Fatalf("unexpected device section: %+v", cfg.Device)
	}
	if cfg.MaxWait() != 0 {
		t.Fatalf("expected unbounded max wait, got %s", cfg.MaxWait())
	}
	if !cfg.Motion.EnforceStackCapacity {
		t.Fatal("expected stack capacity checks enabled")
	}
	tower2 := cfg.Locations["tower2"]
	if tower2.Kind != config.KindTower || tower2.Count != 3 || tower2.PlaceDepth != -1000 {
		t.Fatalf("unexpected tower2: %+v", tower2)
	}
	if cfg.Locations["tower6"].HasLid {
		t.Fatal("expected empty tower6 to have no lid")
	}
	if _, ok := cfg.Locations["tower1"]; !ok {
		t.Fatal("expected default tower1 to be kept")
	}
	if _, ok := cfg.PlateTypes["pcr_plate"]; !ok {
		t.Fatal("expected default plate types to be kept")
	}
}

func TestLoadAppliesLabwareFile(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)

	labwareYAML := `plate_types:
  deep_well:
    height: 41.5
    grab_exchange: -25
    grab_tower: -20
locations:
  tower3:
    kind: tower
    position: {z: 23.5188, r: 169.5, y: 171.481, p: 12.4716}
    plate_type: deep_well
    count: 2
`
	if err := os.WriteFile(filepath.Join(tempDir, "labware.yaml"), []byte(labwareYAML), 0o644); err != nil {
		t.Fatalf("write labware: %v", err)
	}
	configPath := filepath.Join(tempDir, "config.toml")
	if err := os.WriteFile(configPath, []byte("labware_file = \"labware.yaml\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LabwareFile != filepath.Join(tempDir, "labware.yaml") {
		t.Fatalf("unexpected labware path: %q", cfg.LabwareFile)
	}
	if cfg.PlateTypes["deep_well"].Height != 41.5 {
		t.Fatalf("expected deep_well plate type, got %+v", cfg.PlateTypes["deep_well"])
	}
	tower3 := cfg.Locations["tower3"]
	if tower3.PlateType != "deep_well" || tower3.Count != 2 {
		t.Fatalf("unexpected tower3: %+v", tower3)
	}
}

func TestValidateRejectsUnknownPlateType(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	configPath := filepath.Join(tempDir, "config.toml")
	content := `[locations.tower2]
kind = "tower"
plate_type = "mystery"
count = 1
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "mystery") {
		t.Fatalf("expected plate type in error, got %v", err)
	}
}

func TestValidateRequiresSingleExchange(t *testing.T) {
	cfg := config.Default()
	cfg.Locations["exchange2"] = config.Location{Kind: config.KindExchange}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "exactly one exchange") {
		t.Fatalf("expected exchange validation error, got %v", err)
	}
}

func TestValidateTCPRequiresAddress(t *testing.T) {
	cfg := config.Default()
	cfg.Device.Transport = config.TransportTCP
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing address error")
	}
	cfg.Device.Address = "localhost:7070"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnvironmentSuppliesDeviceAddress(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("PLATECRANE_DEVICE_ADDRESS", "10.0.0.5:4001")
	configPath := filepath.Join(tempDir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[device]\ntransport = \"tcp\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Device.Address != "10.0.0.5:4001" {
		t.Fatalf("expected address from env, got %q", cfg.Device.Address)
	}
}

func TestCreateSampleLoads(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	path := filepath.Join(tempDir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Device.VendorID != 0x7513 {
		t.Fatalf("unexpected vendor id %#x", cfg.Device.VendorID)
	}
	if cfg.Locations["tower1"].PlateType != "pcr_plate" {
		t.Fatalf("unexpected tower1 from sample: %+v", cfg.Locations["tower1"])
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.SocketPath = filepath.Join(base, "run", "platecrane.sock")
	cfg.Ledger.Backend = config.LedgerSQLite
	cfg.Paths.LedgerDB = filepath.Join(base, "db", "ledger.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{"state", "run", "db"} {
		if info, err := os.Stat(filepath.Join(base, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
