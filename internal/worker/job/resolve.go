package job

import (
	"net/url"
	"path"
	"strings"
)

// ResolvedSource tells the pipeline where to fetch a job's source and where
// to store it locally.
type ResolvedSource struct {
	FetchLocator string
	SaveName     string
}

// IsURL reports whether the locator is an absolute URL rather than a
// storage-relative key.
func (r ResolvedSource) IsURL() bool {
	_, ok := fileURL(r.FetchLocator)
	return ok
}

var knownSuffixes = []string{".pdf", ".doc", ".docx", ".ppt", ".pptx", ".html"}

// Resolve derives the fetch locator and the normalized save name. The save
// name never depends on the original file name.
func Resolve(j ConversionJob) ResolvedSource {
	saveName := collapseSlashes(j.UUID + "/file." + strings.ToLower(j.Extension))

	if u, ok := fileURL(decodeRef(j.EncodedFileName)); ok {
		u.Path = collapseSlashes(u.Path)
		if u.RawPath != "" {
			u.RawPath = collapseSlashes(u.RawPath)
		}
		return ResolvedSource{FetchLocator: u.String(), SaveName: saveName}
	}

	key := j.UUID + "/" + encodeRef(j.EncodedFileName) + "." + j.Extension
	return ResolvedSource{FetchLocator: collapseSlashes(key), SaveName: saveName}
}

// UploadBaseName is the object name, without extension, a rendered PDF is
// stored under.
func UploadBaseName(j ConversionJob) string {
	decoded := decodeRef(j.EncodedFileName)

	name := decoded
	u, isURL := fileURL(decoded)
	if isURL {
		name = path.Base(u.Path)
	} else if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = strings.TrimSuffix(name, path.Ext(name))

	if !isURL {
		suffixes := append(knownSuffixes[:len(knownSuffixes):len(knownSuffixes)], "."+strings.ToLower(j.Extension))
		lower := strings.ToLower(name)
		for _, s := range suffixes {
			if s != "." && strings.HasSuffix(lower, s) {
				name = name[:len(name)-len(s)]
				break
			}
		}
	}

	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}

// PDFKey is the object key for a job's rendered PDF.
func PDFKey(j ConversionJob) string {
	return collapseSlashes(j.UUID + "/" + UploadBaseName(j) + ".pdf")
}

// HTMLKey is the object key for a job's rendered presentation page.
func HTMLKey(j ConversionJob) string {
	return collapseSlashes(j.UUID + "/presentation.html")
}

// AssetKey is the object key for one file of the HTML sidecar directory.
func AssetKey(j ConversionJob, name string) string {
	return collapseSlashes(j.UUID + "/file.files/" + name)
}

func decodeRef(ref string) string {
	decoded, err := url.QueryUnescape(ref)
	if err != nil {
		return ref
	}
	return decoded
}

// encodeRef leaves values that already carry escapes untouched.
func encodeRef(ref string) string {
	if strings.Contains(ref, "%") {
		return ref
	}
	return url.PathEscape(ref)
}

// fileURL accepts absolute http(s) URLs whose path names a file.
func fileURL(s string) (*url.URL, bool) {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if u.Path == "" || u.Path == "/" || strings.HasSuffix(u.Path, "/") {
		return nil, false
	}
	if ext := path.Ext(u.Path); ext == "" || ext == "." {
		return nil, false
	}
	return u, true
}

func collapseSlashes(s string) string {
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	return s
}
