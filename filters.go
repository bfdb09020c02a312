package lavago

// FilterPreset is a closed enum of preset names tracked by Filters.filtersStatus
// (spec §4.3).
type FilterPreset string

const (
	PresetDistortion FilterPreset = "distortion"
	PresetEqualizer  FilterPreset = "equalizer"
	PresetKaraoke    FilterPreset = "karaoke"
	PresetRotation   FilterPreset = "rotation"
	PresetTimescale  FilterPreset = "timescale"
	PresetVibrato    FilterPreset = "vibrato"
	PresetVolume     FilterPreset = "volume"
)

// EqualizerBand is one of the 15 (0..14) adjustable bands.
type EqualizerBand struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}

type DistortionFilter struct {
	SinOffset float64 `json:"sinOffset"`
	SinScale  float64 `json:"sinScale"`
	CosOffset float64 `json:"cosOffset"`
	CosScale  float64 `json:"cosScale"`
	TanOffset float64 `json:"tanOffset"`
	TanScale  float64 `json:"tanScale"`
	Offset    float64 `json:"offset"`
	Scale     float64 `json:"scale"`
}

type KaraokeFilter struct {
	Level       float64 `json:"level"`
	MonoLevel   float64 `json:"monoLevel"`
	FilterBand  float64 `json:"filterBand"`
	FilterWidth float64 `json:"filterWidth"`
}

type RotationFilter struct {
	RotationHz float64 `json:"rotationHz"`
}

type TimescaleFilter struct {
	Speed float64 `json:"speed"`
	Pitch float64 `json:"pitch"`
	Rate  float64 `json:"rate"`
}

type VibratoFilter struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

// filtersPayload is the `filters` object sent with updatePlayer (spec §4.1).
type filtersPayload struct {
	Volume      *float64           `json:"volume,omitempty"`
	Equalizer   []EqualizerBand    `json:"equalizer,omitempty"`
	Karaoke     *KaraokeFilter     `json:"karaoke,omitempty"`
	Timescale   *TimescaleFilter   `json:"timescale,omitempty"`
	Tremolo     *VibratoFilter     `json:"tremolo,omitempty"`
	Vibrato     *VibratoFilter     `json:"vibrato,omitempty"`
	Rotation    *RotationFilter    `json:"rotation,omitempty"`
	Distortion  *DistortionFilter  `json:"distortion,omitempty"`
}

// Filters accumulates effect parameters for a Player and emits a single
// updatePlayer REST call per mutation (spec §4.3, component C3).
type Filters struct {
	player *Player

	volume     *float64
	equalizer  []EqualizerBand
	karaoke    *KaraokeFilter
	rotation   *RotationFilter
	timescale  *TimescaleFilter
	vibrato    *VibratoFilter
	distortion *DistortionFilter

	status map[FilterPreset]bool
}

func newFilters(p *Player) *Filters {
	return &Filters{player: p, status: map[FilterPreset]bool{}}
}

func (f *Filters) payload() *filtersPayload {
	return &filtersPayload{
		Volume:     f.volume,
		Equalizer:  f.equalizer,
		Karaoke:    f.karaoke,
		Timescale:  f.timescale,
		Vibrato:    f.vibrato,
		Rotation:   f.rotation,
		Distortion: f.distortion,
	}
}

// push issues the single REST call that synchronizes accumulated filter
// state to the node, unless the caller opted out via updateFilters=false.
func (f *Filters) push(updateFilters bool) error {
	if !updateFilters {
		return nil
	}
	if f.player == nil || f.player.node == nil {
		return errValidation(ErrInvalidState, "filters: player has no active node")
	}
	return f.player.updatePlayer(&updatePlayerRequest{Filters: f.payload()}, false)
}

func (f *Filters) SetDistortion(d *DistortionFilter, updateFilters bool) error {
	f.distortion = d
	f.status[PresetDistortion] = d != nil
	return f.push(updateFilters)
}

func (f *Filters) SetEqualizer(bands []EqualizerBand, updateFilters bool) error {
	f.equalizer = bands
	f.status[PresetEqualizer] = len(bands) > 0
	return f.push(updateFilters)
}

func (f *Filters) SetKaraoke(k *KaraokeFilter, updateFilters bool) error {
	f.karaoke = k
	f.status[PresetKaraoke] = k != nil
	return f.push(updateFilters)
}

func (f *Filters) SetRotation(r *RotationFilter, updateFilters bool) error {
	f.rotation = r
	f.status[PresetRotation] = r != nil
	return f.push(updateFilters)
}

func (f *Filters) SetTimescale(t *TimescaleFilter, updateFilters bool) error {
	f.timescale = t
	f.status[PresetTimescale] = t != nil
	return f.push(updateFilters)
}

func (f *Filters) SetVibrato(v *VibratoFilter, updateFilters bool) error {
	f.vibrato = v
	f.status[PresetVibrato] = v != nil
	return f.push(updateFilters)
}

func (f *Filters) SetVolume(v *float64, updateFilters bool) error {
	f.volume = v
	f.status[PresetVolume] = v != nil
	return f.push(updateFilters)
}

// IsActive reports whether a given preset's flag is currently set.
func (f *Filters) IsActive(p FilterPreset) bool { return f.status[p] }

// ClearFilters resets every field and preset flag and issues one
// updatePlayer call (spec §4.3).
func (f *Filters) ClearFilters() error {
	f.volume = nil
	f.equalizer = nil
	f.karaoke = nil
	f.rotation = nil
	f.timescale = nil
	f.vibrato = nil
	f.distortion = nil
	f.status = map[FilterPreset]bool{}
	return f.push(true)
}
