// Package model holds the data types shared across the resolve-and-install
// pipeline: the dependency graph (WaveNode/WaveGraph), package content
// (PackageFile/EnhancedPackageFormat), and the per-package install context.
// These are plain JSON/YAML-tagged structs with no behavior of their own,
// matching the style of internal/errs.Error.
package model

// DependencyDeclaration is one edge from a manifest to a dependency.
// Exactly one of URL or (Path without URL) identifies a non-registry
// source; otherwise the dependency is a registry lookup by Name.
type DependencyDeclaration struct {
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	Constraint string `json:"constraint,omitempty" yaml:"constraint,omitempty"`
	URL        string `json:"url,omitempty" yaml:"url,omitempty"`
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	Dev        bool   `json:"dev,omitempty" yaml:"dev,omitempty"`
}

// SourceType classifies how a WaveNode's content was addressed.
type SourceType string

const (
	SourceRegistry SourceType = "registry"
	SourceGit      SourceType = "git"
	SourcePath     SourceType = "path"
)

// WaveNode is one resolved dependency in the graph.
type WaveNode struct {
	ID              string                  `json:"id"`
	DisplayName     string                  `json:"displayName"`
	SourceType      SourceType              `json:"sourceType"`
	NormalizedURL   string                  `json:"normalizedUrl,omitempty"`
	Ref             string                  `json:"ref,omitempty"`
	AbsPath         string                  `json:"absPath,omitempty"`
	Declarations    []DependencyDeclaration `json:"declarations"`
	ResolvedVersion string                  `json:"resolvedVersion,omitempty"`
	ContentRoot     string                  `json:"contentRoot,omitempty"`
	RepoRoot        string                  `json:"repoRoot,omitempty"`
	CommitSHA       string                  `json:"commitSha,omitempty"`
	Metadata        map[string]string       `json:"metadata,omitempty"`
	Children        []string                `json:"children"`
	Parents         []string                `json:"parents"`
	Wave            int                     `json:"wave"`
	IsMarketplace   bool                    `json:"isMarketplace,omitempty"`
}

// WaveGraph is the resolved dependency graph.
type WaveGraph struct {
	Nodes        map[string]*WaveNode `json:"nodes"`
	Roots        []string             `json:"roots"`
	InstallOrder []string             `json:"installOrder"`
	// Layers is InstallOrder grouped by topological depth: dependencies
	// always occupy an earlier layer than their dependents, regardless
	// of each node's BFS discovery Wave. The installer batches work by
	// Layers, not by Wave, since Wave only reflects discovery order.
	Layers    [][]string `json:"layers"`
	Cycles    [][]string `json:"cycles"`
	WaveCount int        `json:"waveCount"`
	Warnings  []string   `json:"warnings"`
}

// Conflict records a package name whose combined ranges had candidates but
// none satisfied every range.
type Conflict struct {
	PackageName string   `json:"packageName"`
	Ranges      []string `json:"ranges"`
	RequestedBy []string `json:"requestedBy"`
}

// VersionSolution is the output of the version solver for an entire run.
type VersionSolution struct {
	Resolved  map[string]string `json:"resolved"`
	Conflicts []Conflict        `json:"conflicts"`
}

// WaveResult bundles the resolved graph with its version solution.
type WaveResult struct {
	Graph           *WaveGraph
	VersionSolution VersionSolution
	MissingPackages []string
}

// Frontmatter is a package file's parsed YAML frontmatter block.
type Frontmatter map[string]any

// PackageFile is one file within a package's content root.
type PackageFile struct {
	Path        string
	Content     []byte
	Frontmatter Frontmatter
}

// DetectionMethod names the tier that produced a format classification.
type DetectionMethod string

const (
	DetectionPackageMarker     DetectionMethod = "package-marker"
	DetectionPerFile           DetectionMethod = "per-file"
	DetectionDirectoryStruct   DetectionMethod = "directory-structure"
)

// PackageFormatKind is the classification bucket for an entire package.
type PackageFormatKind string

const (
	FormatUniversal PackageFormatKind = "universal"
	FormatMixed     PackageFormatKind = "mixed"
	FormatUnknown   PackageFormatKind = "unknown"
)

// EnhancedPackageFormat is the detector's output for one package.
type EnhancedPackageFormat struct {
	PackageFormat   string          `json:"packageFormat"`
	DetectionMethod DetectionMethod `json:"detectionMethod"`
	Confidence      float64         `json:"confidence"`
	FileFormats     map[string]string
	FormatGroups    map[string][]string
	// FormatOrder lists the formats observed in FormatGroups in the order
	// they were first encountered, for callers that need a deterministic
	// tie-break over an otherwise unordered map.
	FormatOrder []string
	Markers     []string
	Analysis    map[string]any
}

// InstallMode controls write semantics for an install run.
type InstallMode string

const (
	ModeInstall InstallMode = "install"
	ModeUpdate  InstallMode = "update"
)

// InstallContext is created from a WaveNode and lives for one package
// install.
type InstallContext struct {
	Execution                string
	TargetDir                string
	Source                   *WaveNode
	Mode                     InstallMode
	Options                  map[string]any
	Platforms                []string
	ResolvedPackages         []PackageFile
	Warnings                 []string
	Errors                   []error
	SkipDependencyResolution bool
	DetectedBase             string
	BaseRelative             string
	MatchedPattern           string
}
