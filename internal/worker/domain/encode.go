package domain

// CodecFamily definition supported codec family
type CodecFamily string

const (
	// CodecH264 h264 family
	CodecH264 CodecFamily = "h264"
	// CodecH265 h265 family
	CodecH265 CodecFamily = "h265"
	// CodecAV1 av1 family
	CodecAV1 CodecFamily = "av1"
)

// QualityPreset definition quality preset
type QualityPreset string

const (
	// QualityLossless 近無損
	QualityLossless QualityPreset = "lossless"
	// QualityHigh 高品質
	QualityHigh QualityPreset = "high"
	// QualityMedium 中品質
	QualityMedium QualityPreset = "medium"
)

// EncoderCandidate 硬體編碼器探測候選
type EncoderCandidate struct {
	Encoder string
	Vendor  string
}

// GPUProbeOrder 各 codec family 的硬體編碼器探測順序（固定 AMD → NVIDIA → Intel）
var GPUProbeOrder = map[CodecFamily][]EncoderCandidate{
	CodecH264: {
		{Encoder: "h264_amf", Vendor: "AMD"},
		{Encoder: "h264_nvenc", Vendor: "NVIDIA"},
		{Encoder: "h264_qsv", Vendor: "Intel QuickSync"},
	},
	CodecH265: {
		{Encoder: "hevc_amf", Vendor: "AMD"},
		{Encoder: "hevc_nvenc", Vendor: "NVIDIA"},
		{Encoder: "hevc_qsv", Vendor: "Intel QuickSync"},
	},
	CodecAV1: {
		{Encoder: "av1_amf", Vendor: "AMD RDNA 3+"},
		{Encoder: "av1_nvenc", Vendor: "NVIDIA RTX 40-series"},
		{Encoder: "av1_qsv", Vendor: "Intel Arc"},
	},
}

// GPUEncoderConfig 硬體編碼器參數
type GPUEncoderConfig struct {
	Args map[QualityPreset][]string
}

// ArgsFor 取品質參數，未定義的 preset 退回 high
func (c GPUEncoderConfig) ArgsFor(preset QualityPreset) []string {
	if args, ok := c.Args[preset]; ok {
		return args
	}
	return c.Args[QualityHigh]
}

// GPUEncoderConfigs 依編碼器名稱對應參數表
var GPUEncoderConfigs = map[string]GPUEncoderConfig{
	"h264_nvenc": {Args: map[QualityPreset][]string{
		QualityLossless: {"-preset", "p7", "-cq", "19", "-b:v", "0"},
		QualityHigh:     {"-preset", "p5", "-cq", "23", "-b:v", "0"},
	}},
	"h264_amf": {Args: map[QualityPreset][]string{
		QualityLossless: {"-quality", "quality", "-qp_i", "18", "-qp_p", "18"},
		QualityHigh:     {"-quality", "balanced", "-qp_i", "23", "-qp_p", "23"},
	}},
	"h264_qsv": {Args: map[QualityPreset][]string{
		QualityLossless: {"-preset", "veryslow", "-global_quality", "18"},
		QualityHigh:     {"-preset", "medium", "-global_quality", "23"},
	}},
	"hevc_nvenc": {Args: map[QualityPreset][]string{
		QualityLossless: {"-preset", "p7", "-cq", "20", "-b:v", "0"},
		QualityHigh:     {"-preset", "p5", "-cq", "25", "-b:v", "0"},
	}},
	"hevc_amf": {Args: map[QualityPreset][]string{
		QualityLossless: {"-quality", "quality", "-qp_i", "20", "-qp_p", "20"},
		QualityHigh:     {"-quality", "balanced", "-qp_i", "25", "-qp_p", "25"},
	}},
	"hevc_qsv": {Args: map[QualityPreset][]string{
		QualityLossless: {"-preset", "veryslow", "-global_quality", "20"},
		QualityHigh:     {"-preset", "medium", "-global_quality", "25"},
	}},
	"av1_nvenc": {Args: map[QualityPreset][]string{
		QualityLossless: {"-cq", "18", "-b:v", "0"},
		QualityHigh:     {"-cq", "23", "-b:v", "0"},
	}},
	"av1_amf": {Args: map[QualityPreset][]string{
		QualityLossless: {"-cq", "18", "-b:v", "0"},
		QualityHigh:     {"-cq", "23", "-b:v", "0"},
	}},
	"av1_qsv": {Args: map[QualityPreset][]string{
		QualityLossless: {"-cq", "18", "-b:v", "0"},
		QualityHigh:     {"-cq", "23", "-b:v", "0"},
	}},
}

// CPUQuality 軟體編碼品質參數
type CPUQuality struct {
	CRF    string
	Preset string
}

// CPUEncoderConfig 軟體編碼器設定
type CPUEncoderConfig struct {
	Encoder string
	Presets map[QualityPreset]CPUQuality
}

// QualityFor 取品質參數，未定義的 preset 退回 high
func (c CPUEncoderConfig) QualityFor(preset QualityPreset) CPUQuality {
	if q, ok := c.Presets[preset]; ok {
		return q
	}
	return c.Presets[QualityHigh]
}

// CPUCodecConfigs 各 codec family 的軟體編碼器（保證的終端策略）
var CPUCodecConfigs = map[CodecFamily]CPUEncoderConfig{
	CodecH264: {
		Encoder: "libx264",
		Presets: map[QualityPreset]CPUQuality{
			QualityLossless: {CRF: "18", Preset: "slow"},
			QualityHigh:     {CRF: "23", Preset: "medium"},
			QualityMedium:   {CRF: "28", Preset: "fast"},
		},
	},
	CodecH265: {
		Encoder: "libx265",
		Presets: map[QualityPreset]CPUQuality{
			QualityLossless: {CRF: "20", Preset: "slow"},
			QualityHigh:     {CRF: "25", Preset: "medium"},
			QualityMedium:   {CRF: "30", Preset: "fast"},
		},
	},
	CodecAV1: {
		Encoder: "libsvtav1",
		Presets: map[QualityPreset]CPUQuality{
			QualityLossless: {CRF: "20", Preset: "6"},
			QualityHigh:     {CRF: "23", Preset: "8"},
			QualityMedium:   {CRF: "28", Preset: "10"},
		},
	},
}

// AudioConfig 音訊固定參數
var AudioConfig = struct {
	Codec      string
	Bitrate    string
	SampleRate string
}{
	Codec:      "aac",
	Bitrate:    "192k",
	SampleRate: "48000",
}
