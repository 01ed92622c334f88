// Package convert implements the conversion providers that turn an uploaded
// diagram image into TikZ markup.
//
// TemplateConverter works offline from the template catalog. DaTikZClient
// calls the DaTikZ recognition API, retrying throttled and server-side
// failures with exponential backoff inside the caller's deadline.
package convert
