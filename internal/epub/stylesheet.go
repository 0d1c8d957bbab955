package epub

// defaultStylesheet is embedded into every assembled document.
const defaultStylesheet = `body {
    font-family: Georgia, serif;
    line-height: 1.6;
    margin: 1em;
    color: #222;
}
h1, h2, h3, h4 {
    font-family: Georgia, serif;
    line-height: 1.3;
    margin-top: 1.5em;
}
h1 { font-size: 1.8em; }
h2 { font-size: 1.4em; }
h3 { font-size: 1.2em; }
p { margin: 0.8em 0; text-indent: 0; }
blockquote {
    margin: 1em 2em;
    padding-left: 1em;
    border-left: 3px solid #ccc;
    font-style: italic;
}
img { max-width: 100%; height: auto; display: block; margin: 1em auto; }
a { color: #1a5276; text-decoration: underline; }
.subtitle { font-style: italic; color: #555; margin-bottom: 1.5em; font-size: 1.1em; }
.date { color: #888; font-size: 0.9em; margin-bottom: 2em; }
hr { border: none; border-top: 1px solid #ccc; margin: 2em 0; }
figure { margin: 1em 0; text-align: center; }
figcaption { font-size: 0.85em; color: #666; margin-top: 0.5em; font-style: italic; }
.footnote-anchor { font-size: 0.75em; vertical-align: super; line-height: 0; text-decoration: none; }
.footnote { font-size: 0.85em; margin-top: 0.5em; padding-top: 0.5em; }
.footnote-number { text-decoration: none; font-weight: bold; margin-right: 0.3em; }
.footnote-content { display: inline; }
`
