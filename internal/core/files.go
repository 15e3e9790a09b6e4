package core

// Input is one resolved input file. Step identity covers its path and
// bytes, never its metadata.
type Input struct {
	Path    string
	Content []byte
}

// InputSet is the resolved inputs of a step in path order.
type InputSet struct {
	Inputs []Input
}

// Artifact is a declared output file of a step, with a slash-separated
// path relative to the working directory.
type Artifact struct {
	Path    string
	Content []byte
}

// ArtifactSet is the harvested outputs of a step in path order.
type ArtifactSet struct {
	Artifacts []Artifact
}

// Paths lists the artifact paths.
func (s *ArtifactSet) Paths() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Artifacts))
	for _, a := range s.Artifacts {
		out = append(out, a.Path)
	}
	return out
}
