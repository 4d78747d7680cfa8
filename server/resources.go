package server

// indexHTML is the landing page: a short pointer to /help and /noscript
// rather than a scripted uploader bundle.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Piping</title>
</head>
<body>
<h1>Piping</h1>
<p>Streams a request body from a sender to a receiver on the same path.
Use <code>curl</code>, or see <a href="/help">/help</a> for examples, or
<a href="/noscript">/noscript</a> if JavaScript is unavailable.</p>
</body>
</html>
`
