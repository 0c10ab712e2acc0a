package config

const (
	defaultStorageDir             = "/storage"
	defaultStateDir               = "~/.local/share/archivist"
	defaultLogDir                 = "~/.local/share/archivist/logs"
	defaultAPIBind                = "127.0.0.1:7491"
	defaultRecorderBinary         = "BililiveRecorder.Cli"
	defaultRecorderStopTimeout    = 10
	defaultRecorderFilename       = `{{ roomId }}/{{ "now" | time_zone: "Asia/Shanghai" | format_date: "yyyyMMdd" }}/{{ roomId }}-{{ "now" | time_zone: "Asia/Shanghai" | format_date: "yyyyMMdd-HHmmss-fff" }}.flv`
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultDanmakuPython          = "python3"
	defaultDanmakuFactory         = "DanmakuFactory"
	defaultFontName               = "Noto Sans CJK SC"
	defaultEncoder                = "auto"
	defaultGPUProbeBinary         = "nvidia-smi"
	defaultEarlyWaitSeconds       = 60
	defaultFinalWaitSeconds       = 360
	defaultPollIntervalSeconds    = 60
	defaultMaxPipelines           = 64
	defaultEventBuffer            = 256
	defaultNotifyRequestTimeout   = 10
	defaultRedisChannelPrefix     = "archivist:"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultContinueSessionMinutes = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StorageDir: defaultStorageDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Recorder: Recorder{
			Enabled:            true,
			Binary:             defaultRecorderBinary,
			Args:               []string{"portable", "-d", "63"},
			FilenameTemplate:   defaultRecorderFilename,
			StopTimeoutSeconds: defaultRecorderStopTimeout,
		},
		Media: Media{
			FFmpegBinary:         defaultFFmpegBinary,
			FFprobeBinary:        defaultFFprobeBinary,
			DanmakuPython:        defaultDanmakuPython,
			DanmakuFactoryBinary: defaultDanmakuFactory,
			FontName:             defaultFontName,
			Encoder:              defaultEncoder,
			GPUProbeBinary:       defaultGPUProbeBinary,
		},
		Workflow: Workflow{
			EarlyWaitSeconds:    defaultEarlyWaitSeconds,
			FinalWaitSeconds:    defaultFinalWaitSeconds,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			MaxPipelines:        defaultMaxPipelines,
			EventBuffer:         defaultEventBuffer,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			RedisChannelPrefix: defaultRedisChannelPrefix,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Accounts: map[string]Account{},
	}
}
