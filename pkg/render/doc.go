// Package render is the view layer behind the render service.
//
// A ViewRenderer resolves artifacts by kind and identifier and renders them
// with props:
//
//	Resolve(ctx, KindFragment, "components/Flash") -> *Artifact | ErrNotFound
//	Render(ctx, artifact, props)                   -> HTML | *RenderError
//
// TemplateRenderer implements ViewRenderer with html/template files read
// from a Source. Pages live under pages/, layouts under layouts/, and
// fragments are addressed by their path relative to the source root:
//
//	app/
//	  layouts/Application.html
//	  pages/home.html
//	  components/Flash.html
//
// Sources are either a directory (DirSource) or an S3 bucket prefix
// (S3Source). Parsed templates are cached per path unless the renderer runs
// in debug mode.
//
// A file defining a template named "component" renders that template;
// otherwise the file body is the component. A file with neither has no
// renderable component.
package render
