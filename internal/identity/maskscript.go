package identity

// maskScriptTemplate hides automation markers and perturbs the usual
// fingerprinting surfaces. The %d placeholder seeds the canvas/audio noise.
const maskScriptTemplate = `
(() => {
    const seed = %d;
    let state = seed;
    const noise = () => {
        state = (state * 1103515245 + 12345) & 0x7fffffff;
        return (state / 0x7fffffff) * 2 - 1;
    };

    // Remove the webdriver marker.
    Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
    delete navigator.__proto__.webdriver;

    // Permissions queries behave like a real browser.
    const originalQuery = window.navigator.permissions.query;
    window.navigator.permissions.query = (parameters) => (
        parameters.name === 'notifications'
            ? Promise.resolve({ state: Notification.permission })
            : originalQuery(parameters)
    );

    // Plausible plugin and language lists.
    Object.defineProperty(navigator, 'plugins', {
        get: () => [
            { name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
            { name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai', description: '' },
            { name: 'Native Client', filename: 'internal-nacl-plugin', description: '' },
        ]
    });
    Object.defineProperty(navigator, 'languages', {
        get: () => ['ja-JP', 'ja', 'en-US', 'en']
    });

    // Canvas fingerprint perturbation.
    const originalToDataURL = HTMLCanvasElement.prototype.toDataURL;
    HTMLCanvasElement.prototype.toDataURL = function () {
        const context = this.getContext('2d');
        if (context) {
            const imageData = context.getImageData(0, 0, this.width, this.height);
            for (let i = 0; i < imageData.data.length; i += 4) {
                imageData.data[i] += Math.round(noise());
                imageData.data[i + 1] += Math.round(noise());
                imageData.data[i + 2] += Math.round(noise());
            }
            context.putImageData(imageData, 0, 0);
        }
        return originalToDataURL.apply(this, arguments);
    };

    // WebGL vendor/renderer spoofing.
    const getParameter = WebGLRenderingContext.prototype.getParameter;
    WebGLRenderingContext.prototype.getParameter = function (parameter) {
        if (parameter === 37445) { return 'Intel Inc.'; }
        if (parameter === 37446) { return 'Intel Iris OpenGL Engine'; }
        return getParameter.apply(this, arguments);
    };

    // AudioContext oscillator drift.
    const audioContext = window.AudioContext || window.webkitAudioContext;
    if (audioContext) {
        const OriginalAudioContext = audioContext;
        window.AudioContext = function () {
            const context = new OriginalAudioContext();
            const originalCreateOscillator = context.createOscillator;
            context.createOscillator = function () {
                const oscillator = originalCreateOscillator.apply(this, arguments);
                const originalStart = oscillator.start;
                oscillator.start = function () {
                    oscillator.frequency.value += Math.abs(noise()) * 0.0001;
                    return originalStart.apply(this, arguments);
                };
                return oscillator;
            };
            return context;
        };
    }

    // Screen metrics consistent with the viewport.
    Object.defineProperty(screen, 'availWidth', { get: () => window.innerWidth });
    Object.defineProperty(screen, 'availHeight', { get: () => window.innerHeight });
    Object.defineProperty(screen, 'width', { get: () => window.innerWidth });
    Object.defineProperty(screen, 'height', { get: () => window.innerHeight });

    window.chrome = { runtime: {} };
})();
`
