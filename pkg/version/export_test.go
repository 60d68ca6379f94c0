package version

var ShortRevision = revision
