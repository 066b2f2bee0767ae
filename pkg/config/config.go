package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// FileName is the name of the optional configuration file in the project root.
const FileName = "assets.toml"

// Config describes all configuration options
type Config struct {
	Src  string `default:"src" usage:"Source directory"`
	Dist string `default:"dist" usage:"Output directory"`
	Log  struct {
		Level string `default:"info"`
		JSON  bool   `default:"false" usage:"Output JSONND instead of pretty console messages"`
	}
	Styles struct {
		Entry    string   `default:"scss/style.scss" usage:"Stylesheet entry point, relative to src"`
		Watch    []string `default:"scss/**/*.scss" usage:"Patterns that trigger a rebuild, relative to src"`
		OutDir   string   `default:"css" toml:"out_dir" usage:"Output directory for the compiled stylesheet, relative to src"`
		Output   string   `default:"style.min.css" usage:"Name of the compiled stylesheet"`
		Compiler string   `default:"sass --no-source-map --style=compressed" usage:"SCSS compiler command; the entry path is appended"`
		Targets  []string `default:"chrome58,edge16,firefox57,safari11,ios11" usage:"Browser targets used for vendor prefixes"`
	}
	Scripts struct {
		Entry      string   `default:"js/main.js" usage:"Script entry point, relative to src"`
		Bundle     string   `default:"bundle.js" usage:"Name of the bundle"`
		DevDir     string   `default:"js" toml:"dev_dir" usage:"Output directory of the development bundle, relative to src"`
		ProdDir    string   `default:"js" toml:"prod_dir" usage:"Output directory of the production bundle, relative to dist"`
		Target     string   `default:"es2015" usage:"Language level of the generated code"`
		Extensions []string `default:".js,.json" usage:"Extensions tried when resolving imports"`
		Splitting  bool     `default:"true" usage:"Split shared code into chunks; the bundle is then an ES module and needs <script type=\"module\">"`
	}
	Images struct {
		Dir              string `default:"images" usage:"Image directory, relative to src and dist"`
		JPEGQuality      int    `default:"75" toml:"jpeg_quality"`
		JPEGProgressive  bool   `default:"true" toml:"jpeg_progressive"`
		PNGLevel         int    `default:"5" toml:"png_level" usage:"PNG optimization level (0-7)"`
		GIFInterlaced    bool   `default:"true" toml:"gif_interlaced"`
		SVGRemoveViewBox bool   `default:"true" toml:"svg_remove_viewbox"`
		SVGCleanupIDs    bool   `default:"false" toml:"svg_cleanup_ids"`
		Cache            string `default:".cache/images.db" usage:"Optimizer cache database, relative to the project root; empty disables the cache"`
		Progress         bool   `default:"true" usage:"Show a progress bar"`
	}
	Static struct {
		Patterns []string `default:"css/style.min.css,fonts/**/*" usage:"Files copied verbatim, relative to src"`
	}
	HTML struct {
		Patterns []string `default:"*.html" usage:"HTML entry files, relative to src"`
	}
	Server struct {
		Address string `default:"127.0.0.1:3000" usage:"Address of the development server"`
		Metrics bool   `default:"true" usage:"Expose Prometheus metrics on the development server"`
	}
	Build struct {
		Precompress bool `default:"false" usage:"Write brotli compressed copies of text assets after a build"`
	}
	Vendor struct {
		File   string `default:"vendor.yml" usage:"Vendor download list, relative to the project root"`
		Stamps string `default:".cache/vendor.stamps" usage:"Stamp file recording finished downloads"`
	}
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

var scriptTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// Loader initializes an empty config object and returns a new Loader for this object. Only the
// first existing file is read.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ASSETS",
		SkipFlags: true,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the configuration file and ASSETS_* variables. An explicitly passed file replaces
// assets.toml in projectRoot; the latter is optional.
func Load(projectRoot, file string) (*Config, error) {
	files := []string{filepath.Join(projectRoot, FileName)}
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return nil, eris.Wrapf(err, "failed to read config file %s", file)
		}
		files = []string{file}
	}

	cfg, loader := Loader(files...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration without reading files or the environment.
func Default() *Config {
	cfg := Config{}
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFiles: true,
		SkipEnv:   true,
		SkipFlags: true,
	})
	if err := loader.Load(); err != nil {
		panic(err)
	}

	return &cfg
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if _, ok := logLevels[cfg.Log.Level]; !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if cfg.Src == "" || cfg.Dist == "" {
		return eris.New("src and dist must not be empty")
	}

	if filepath.Clean(cfg.Src) == filepath.Clean(cfg.Dist) {
		return eris.New("src and dist must be different directories")
	}

	if cfg.Images.JPEGQuality < 1 || cfg.Images.JPEGQuality > 100 {
		return eris.Errorf(`Invalid value for images.jpeg_quality: %d (must be between 1 and 100)`, cfg.Images.JPEGQuality)
	}

	if cfg.Images.PNGLevel < 0 || cfg.Images.PNGLevel > 7 {
		return eris.Errorf(`Invalid value for images.png_level: %d (must be between 0 and 7)`, cfg.Images.PNGLevel)
	}

	if _, err := cfg.ScriptTarget(); err != nil {
		return err
	}

	if _, err := cfg.StyleEngines(); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Styles.Compiler) == "" {
		return eris.New("styles.compiler must not be empty")
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// ScriptTarget converts .Scripts.Target to the bundler's target
func (cfg *Config) ScriptTarget() (api.Target, error) {
	target, ok := scriptTargets[strings.ToLower(cfg.Scripts.Target)]
	if !ok {
		return 0, eris.Errorf(`Invalid value for scripts.target: %s`, cfg.Scripts.Target)
	}

	return target, nil
}

// StyleEngines parses .Styles.Targets ("chrome58", "safari11.1", ...) into engine versions.
func (cfg *Config) StyleEngines() ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(cfg.Styles.Targets))
	for _, target := range cfg.Styles.Targets {
		target = strings.ToLower(strings.TrimSpace(target))
		pos := strings.IndexAny(target, "0123456789")
		if pos < 1 {
			return nil, eris.Errorf(`Invalid browser target %q (expected name followed by version, e.g. chrome58)`, target)
		}

		name, ok := engineNames[target[:pos]]
		if !ok {
			return nil, eris.Errorf(`Unknown browser %q in target %q`, target[:pos], target)
		}

		engines = append(engines, api.Engine{Name: name, Version: target[pos:]})
	}

	return engines, nil
}
